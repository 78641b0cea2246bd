package spans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

func newRecordingPlugin() (*Plugin, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	p := New()
	p.provider = tp
	p.tracer = tp.Tracer("test")
	return p, rec
}

func TestSpansExport(t *testing.T) {
	p, rec := newRecordingPlugin()

	ev := &callparser.CallEvent{
		Name: "read", Pid: 42, HasPid: true,
		Timestamp: 1693000000.5, HasTimestamp: true,
		Elapsed: 0.002, HasElapsed: true,
		RetVal: "512", Args: []string{"3", `""`, "512"},
	}
	require.NoError(t, p.export(ev))
	assert.Equal(t, 1, p.exported)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "read", span.Name())
	assert.Equal(t, time.Unix(1693000000, 500000000), span.StartTime())
	assert.Equal(t, 2*time.Millisecond, span.EndTime().Sub(span.StartTime()))
}

func TestSpansErrorStatus(t *testing.T) {
	p, rec := newRecordingPlugin()

	ev := &callparser.CallEvent{
		Name:      "openat",
		Timestamp: 1693000000, HasTimestamp: true,
		Elapsed: 0.0001, HasElapsed: true,
		RetVal: "-1", ErrName: "ENOENT", ErrMessage: "No such file or directory",
	}
	require.NoError(t, p.export(ev))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "ENOENT", ended[0].Status().Description)
}

func TestSpansSkipsIncompleteEvents(t *testing.T) {
	p, rec := newRecordingPlugin()

	require.NoError(t, p.export(&callparser.CallEvent{Name: "read"}))
	require.NoError(t, p.export(&callparser.CallEvent{
		Name: "read", Timestamp: 1693000000, HasTimestamp: true,
	}))

	assert.Empty(t, rec.Ended())
	assert.Equal(t, 0, p.exported)
}

func TestSpansWallClockAnchoring(t *testing.T) {
	p := New()

	epoch := p.wallClock(1693000000.25)
	assert.Equal(t, time.Unix(1693000000, 250000000), epoch)

	// 01:02:03.5 after midnight, today.
	clock := p.wallClock(3723.5)
	assert.Equal(t, p.midnight.Add(3723*time.Second+500*time.Millisecond), clock)
}

func TestSpansOperational(t *testing.T) {
	p := New()
	assert.False(t, p.IsOperational(traceformat.Profile{}))
	assert.False(t, p.IsOperational(traceformat.Profile{HasElapsed: true}))
	assert.False(t, p.IsOperational(traceformat.Profile{Granularity: traceformat.GranularityMicroseconds}))
	assert.True(t, p.IsOperational(traceformat.Profile{
		Granularity: traceformat.GranularityMicroseconds,
		HasElapsed:  true,
	}))
}

func TestSpansOptionService(t *testing.T) {
	p := New()
	require.NoError(t, p.SetOptions(map[string]string{"service": "checkout"}))
	assert.Equal(t, "checkout", p.service)

	assert.Error(t, p.SetOptions(map[string]string{"endpoint": "x"}))
}
