// strace-analyzer replays a recorded strace log through a set of stat
// plugins and prints their reports.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/mrzor/strace-analyzer/internal/config"
	"github.com/mrzor/strace-analyzer/internal/engine"
	"github.com/mrzor/strace-analyzer/internal/filter"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/plugin"
	"github.com/mrzor/strace-analyzer/internal/traceformat"

	// Plugins self-register through their init functions.
	_ "github.com/mrzor/strace-analyzer/internal/plugins/counts"
	_ "github.com/mrzor/strace-analyzer/internal/plugins/iostats"
	_ "github.com/mrzor/strace-analyzer/internal/plugins/proctree"
	_ "github.com/mrzor/strace-analyzer/internal/plugins/spans"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// listPlugins prints every registered plugin with its option help.
func listPlugins(w io.Writer) {
	for _, name := range plugin.Names() {
		factory, err := plugin.Lookup(name)
		if err != nil {
			continue
		}
		p := factory()
		fmt.Fprintf(w, "%s\n", name)

		help := p.OptionHelp()
		keys := make([]string, 0, len(help))
		for key := range help {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %s\n", key, help[key])
		}
	}
}

// openInput opens the trace source. The returned closer is a no-op for
// stdin.
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trace: %w", err)
	}
	closer := func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing trace: %v", err)
		}
	}
	return f, closer, nil
}

// resolveProfile determines the format profile, either from the override
// notation or by sampling the head of the stream. The returned reader
// replays any sampled lines.
func resolveProfile(format string, r io.Reader) (traceformat.Profile, io.Reader, error) {
	if format != "auto" {
		profile, err := traceformat.ParseProfile(format)
		if err != nil {
			return traceformat.Profile{}, nil, err
		}
		return profile, r, nil
	}

	sample, replay, err := traceformat.SampleStream(r, traceformat.DefaultSampleLines)
	if err != nil {
		return traceformat.Profile{}, nil, fmt.Errorf("failed to sample trace: %w", err)
	}
	profile, err := traceformat.Detect(sample)
	if err != nil {
		return traceformat.Profile{}, nil, err
	}
	return profile, replay, nil
}

// setupPlugins instantiates and configures the selected plugins. Option
// errors are fatal here, before the stream is touched.
func setupPlugins(specs []config.PluginSpec) ([]plugin.StatPlugin, error) {
	// A run with no selection still produces the summary table.
	if len(specs) == 0 {
		specs = []config.PluginSpec{{Name: "counts"}}
	}

	plugins := make([]plugin.StatPlugin, 0, len(specs))
	for _, spec := range specs {
		factory, err := plugin.Lookup(spec.Name)
		if err != nil {
			return nil, err
		}
		p := factory()
		if err := p.SetOptions(spec.Options); err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// startPlugins runs Start on every lifecycle-aware plugin. On failure the
// already-started plugins are closed before returning.
func startPlugins(plugins []plugin.StatPlugin) (func(), error) {
	var started []plugin.Lifecycle
	closeAll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, lc := range started {
			if err := lc.Close(ctx); err != nil {
				log.Printf("Error closing plugin: %v", err)
			}
		}
	}

	for _, p := range plugins {
		lc, ok := p.(plugin.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to start plugin %s: %w", p.Name(), err)
		}
		started = append(started, lc)
	}
	return closeAll, nil
}

func run() error {
	cfg, err := config.ParseArgs(os.Args)
	if err != nil {
		return err
	}

	if cfg.ListPlugins {
		listPlugins(os.Stdout)
		return nil
	}

	plugins, err := setupPlugins(cfg.Plugins)
	if err != nil {
		return err
	}

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	profile, stream, err := resolveProfile(cfg.Format, input)
	if err != nil {
		return err
	}
	log.Printf("Trace format: %s", profile)

	for _, p := range plugins {
		if !p.IsOperational(profile) {
			return fmt.Errorf("plugin %s cannot operate on a %s trace", p.Name(), profile)
		}
	}

	registry := hookreg.New()
	for _, p := range plugins {
		plugin.RegisterHooks(registry, p)
	}

	eng := engine.New(profile)
	if cfg.Match != "" {
		match, err := filter.Compile(cfg.Match)
		if err != nil {
			return err
		}
		eng.SetFilter(match)
	}

	closePlugins, err := startPlugins(plugins)
	if err != nil {
		return err
	}
	defer closePlugins()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := eng.Run(ctx, stream, registry)
	if err != nil {
		return err
	}

	for _, p := range plugins {
		fmt.Printf("--- %s ---\n", p.Name())
		if err := p.PrintOutput(os.Stdout); err != nil {
			return fmt.Errorf("plugin %s output failed: %w", p.Name(), err)
		}
	}

	log.Printf("Processed %d lines (%d unparsed), dispatched %d events",
		stats.LinesProcessed, stats.LinesUnparsed, stats.EventsDispatched)
	return nil
}
