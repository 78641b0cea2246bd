// Package config holds the command-line, environment and file
// configuration for the analyzer. Resolution order is environment, then
// config file, then command-line flags; later sources win.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// PluginSpec names a plugin and carries its option assignments.
type PluginSpec struct {
	Name    string            `yaml:"name"`
	Options map[string]string `yaml:"options"`
}

// Config holds the fully resolved run configuration.
type Config struct {
	// Input is the trace file path, or "-" for stdin.
	Input string
	// Plugins are the selected plugins in activation order.
	Plugins []PluginSpec
	// Match is an expression source filtering which events reach the
	// named hooks. Empty means no filter.
	Match string
	// Format is "auto" for sample-based detection, or a compact profile
	// notation such as "pid+micro+elapsed" forcing the format.
	Format string
	// ListPlugins requests the registered plugin listing and exits.
	ListPlugins bool
}

// envConfig holds the environment-variable layer.
type envConfig struct {
	Plugins string `env:"STRACE_ANALYZER_PLUGINS" envDefault:""`
	Match   string `env:"STRACE_ANALYZER_MATCH" envDefault:""`
	Format  string `env:"STRACE_ANALYZER_FORMAT" envDefault:""`
}

// fileConfig mirrors the YAML config file layout.
type fileConfig struct {
	Plugins []PluginSpec `yaml:"plugins"`
	Match   string       `yaml:"match"`
	Format  string       `yaml:"format"`
}

// ParsePluginSpec parses a plugin selector of the form "name" or
// "name:key=value,key=value".
func ParsePluginSpec(s string) (PluginSpec, error) {
	name, rest, hasOpts := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return PluginSpec{}, fmt.Errorf("empty plugin name in %q", s)
	}
	spec := PluginSpec{Name: name}
	if !hasOpts {
		return spec, nil
	}
	spec.Options = make(map[string]string)
	for _, pair := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return PluginSpec{}, fmt.Errorf("plugin %s: malformed option %q, want key=value", name, pair)
		}
		spec.Options[key] = strings.TrimSpace(value)
	}
	return spec, nil
}

// Usage returns the command-line usage text.
func Usage(programName string) string {
	return fmt.Sprintf(`Usage: %s [flags] <trace-file|->

Flags:
  -p, --plugin name[:key=val,...]  activate a plugin (repeatable)
  -m, --match <expr>               only dispatch events matching the expression
  -f, --format <profile|auto>      force the trace format, e.g. pid+micro+elapsed
  -c, --config <file>              load a YAML config file
  -l, --list-plugins               list registered plugins and exit

Environment:
  STRACE_ANALYZER_PLUGINS          semicolon-separated plugin selectors
  STRACE_ANALYZER_MATCH            default match expression
  STRACE_ANALYZER_FORMAT           default format override

Example: %s -p counts:top=10 -p iostats -m 'name == "read"' trace.log`,
		programName, programName)
}

// ParseArgs parses command-line arguments, layered over the environment
// and any -c config file, and returns a Config.
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}
	programName := args[0]

	cfg := &Config{Format: "auto"}

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	if err := cfg.applyEnv(&ec); err != nil {
		return nil, err
	}

	var flagPlugins []PluginSpec
	var flagMatch, flagFormat string
	var positional []string

	for i := 1; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-p", "--plugin":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			spec, err := ParsePluginSpec(args[i])
			if err != nil {
				return nil, err
			}
			flagPlugins = append(flagPlugins, spec)
		case "-m", "--match":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			flagMatch = args[i]
		case "-f", "--format":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			flagFormat = args[i]
		case "-c", "--config":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			if err := cfg.loadFile(args[i]); err != nil {
				return nil, err
			}
		case "-l", "--list-plugins":
			cfg.ListPlugins = true
		case "-h", "--help":
			return nil, fmt.Errorf("%s", Usage(programName))
		default:
			if strings.HasPrefix(arg, "-") && arg != "-" {
				return nil, fmt.Errorf("unknown flag %q\n\n%s", arg, Usage(programName))
			}
			positional = append(positional, arg)
		}
	}

	// Flags win over both the environment and the config file.
	if len(flagPlugins) > 0 {
		cfg.Plugins = flagPlugins
	}
	if flagMatch != "" {
		cfg.Match = flagMatch
	}
	if flagFormat != "" {
		cfg.Format = flagFormat
	}

	if cfg.ListPlugins {
		return cfg, nil
	}

	switch len(positional) {
	case 0:
		return nil, fmt.Errorf("no trace file given\n\n%s", Usage(programName))
	case 1:
		cfg.Input = positional[0]
	default:
		return nil, fmt.Errorf("expected one trace file, got %d\n\n%s", len(positional), Usage(programName))
	}

	return cfg, nil
}

// applyEnv layers the environment values into the config.
func (c *Config) applyEnv(ec *envConfig) error {
	if ec.Match != "" {
		c.Match = ec.Match
	}
	if ec.Format != "" {
		c.Format = ec.Format
	}
	if ec.Plugins == "" {
		return nil
	}
	for _, tok := range strings.Split(ec.Plugins, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		spec, err := ParsePluginSpec(tok)
		if err != nil {
			return fmt.Errorf("STRACE_ANALYZER_PLUGINS: %w", err)
		}
		c.Plugins = append(c.Plugins, spec)
	}
	return nil
}

// loadFile layers a YAML config file into the config. Values present in
// the file replace whatever the environment supplied.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for _, spec := range fc.Plugins {
		if strings.TrimSpace(spec.Name) == "" {
			return fmt.Errorf("config file %s: plugin entry with empty name", path)
		}
	}
	if len(fc.Plugins) > 0 {
		c.Plugins = fc.Plugins
	}
	if fc.Match != "" {
		c.Match = fc.Match
	}
	if fc.Format != "" {
		c.Format = fc.Format
	}
	return nil
}
