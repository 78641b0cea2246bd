// Package spans implements the OpenTelemetry export plugin: one span per
// completed call, with the trace timestamp as span start and the elapsed
// suffix as span duration. It requires a trace captured with both a
// timestamp column and an elapsed-time suffix.
package spans

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/config"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/otel"
	"github.com/mrzor/strace-analyzer/internal/plugin"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

func init() {
	plugin.Register("spans", func() plugin.StatPlugin { return New() })
}

// Plugin exports completed calls as OTLP spans.
type Plugin struct {
	service  string
	endpoint string
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	// midnight anchors clock-style timestamps (seconds since midnight)
	// to a wall-clock date; epoch-style timestamps need no anchor.
	midnight time.Time
	exported int
}

// New creates an unconfigured spans plugin.
func New() *Plugin {
	now := time.Now()
	return &Plugin{
		midnight: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	}
}

func (p *Plugin) Name() string {
	return "spans"
}

// IsOperational requires both a timestamp column and the elapsed suffix:
// a span needs a start time and a duration.
func (p *Plugin) IsOperational(profile traceformat.Profile) bool {
	return profile.Granularity != traceformat.GranularityNone && profile.HasElapsed
}

func (p *Plugin) OptionHelp() map[string]string {
	return map[string]string{
		"service": "service name attached to exported spans (default from OTEL_SERVICE_NAME)",
	}
}

func (p *Plugin) SetOptions(opts map[string]string) error {
	if err := plugin.RejectUnknownOptions(p, opts); err != nil {
		return err
	}
	p.service = opts["service"]
	return nil
}

// Start parses the exporter environment configuration and establishes the
// tracer provider. Failure here is a setup error: the run never begins.
func (p *Plugin) Start() error {
	cfg, err := config.ParseOTELConfig()
	if err != nil {
		return err
	}
	if p.service != "" {
		cfg.ServiceName = p.service
	}
	p.endpoint = cfg.GetEndpoint()

	provider, err := otel.InitProvider(cfg)
	if err != nil {
		return err
	}
	p.provider = provider
	p.tracer = provider.Tracer("strace-analyzer")
	return nil
}

// Close flushes and shuts down the tracer provider.
func (p *Plugin) Close(ctx context.Context) error {
	return otel.ShutdownProvider(ctx, p.provider)
}

func (p *Plugin) SyscallHooks() map[string]hookreg.HookFunc {
	return map[string]hookreg.HookFunc{"*": p.export}
}

func (p *Plugin) RawHooks() []hookreg.RawHookFunc {
	return nil
}

// wallClock converts a trace timestamp to wall-clock time. Epoch-style
// timestamps (strace -ttt) convert directly; clock-style timestamps are
// anchored to the current date.
func (p *Plugin) wallClock(ts float64) time.Time {
	if ts >= 1e9 {
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	return p.midnight.Add(time.Duration(ts * float64(time.Second)))
}

func (p *Plugin) export(ev *callparser.CallEvent) error {
	if !ev.HasTimestamp || !ev.HasElapsed {
		// Anomalous lines under an otherwise full profile; nothing to
		// place on a timeline.
		return nil
	}

	start := p.wallClock(ev.Timestamp)
	end := start.Add(time.Duration(ev.Elapsed * float64(time.Second)))

	_, span := p.tracer.Start(context.Background(), ev.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
	)

	attrs := []attribute.KeyValue{
		attribute.String("syscall.return", ev.RetVal),
		attribute.Int("syscall.arg_count", len(ev.Args)),
	}
	if ev.HasPid {
		attrs = append(attrs, attribute.Int("process.pid", ev.Pid))
	}
	if ev.Resumed {
		attrs = append(attrs, attribute.Bool("syscall.resumed", true))
	}
	span.SetAttributes(attrs...)

	if ev.Failed() {
		span.SetStatus(codes.Error, ev.ErrName)
		span.SetAttributes(attribute.String("syscall.errno", ev.ErrName))
	}

	span.End(trace.WithTimestamp(end))
	p.exported++
	return nil
}

// PrintOutput reports how many spans were handed to the exporter.
func (p *Plugin) PrintOutput(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d spans exported to %s\n", p.exported, p.endpoint)
	return err
}
