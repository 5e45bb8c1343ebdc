package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type resolver struct {
	environment string
	filePath    string
	overrides   map[string]any
	lookupEnv   func(string) (string, bool)
}

// Option adjusts how Resolve assembles the configuration.
type Option func(*resolver)

// WithEnvironment forces the environment tier, overriding every other
// source.
func WithEnvironment(env string) Option {
	return func(r *resolver) { r.environment = env }
}

// WithFile layers a YAML config file over the tier defaults.
func WithFile(path string) Option {
	return func(r *resolver) { r.filePath = path }
}

// WithOverrides layers programmatic values over everything except
// WithEnvironment. Keys follow the YAML shape, e.g.
// {"http": {"endpoint": "..."}}.
func WithOverrides(values map[string]any) Option {
	return func(r *resolver) { r.overrides = values }
}

// WithEnvLookup replaces os.LookupEnv, for tests.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(r *resolver) { r.lookupEnv = fn }
}

// Resolve assembles the configuration and returns it together with
// every problem found on the way. The returned config is always
// usable; callers decide how much of the pipeline to run when
// problems are present.
func Resolve(opts ...Option) (*Config, []error) {
	r := resolver{lookupEnv: os.LookupEnv}
	for _, o := range opts {
		o(&r)
	}
	var problems []error

	base, err := toMap(DefaultConfig())
	if err != nil {
		// Defaults are code we control; this cannot happen outside a
		// programming error.
		return DefaultConfig(), []error{fmt.Errorf("encode defaults: %w", err)}
	}

	fileLayer := map[string]any{}
	if r.filePath != "" {
		raw, err := os.ReadFile(r.filePath)
		if err != nil {
			problems = append(problems, ValidationError{
				Path:    "config_file",
				Message: fmt.Sprintf("cannot read %s: %v", r.filePath, err),
			})
		} else if err := yaml.Unmarshal(raw, &fileLayer); err != nil {
			problems = append(problems, ValidationError{
				Path:    "config_file",
				Message: fmt.Sprintf("invalid YAML in %s: %v", r.filePath, err),
			})
			fileLayer = map[string]any{}
		}
	}

	envLayer, envProblems := envOverlay(r.lookupEnv)
	problems = append(problems, envProblems...)

	overrideLayer := map[string]any{}
	for k, v := range r.overrides {
		overrideLayer[k] = v
	}
	if r.environment != "" {
		overrideLayer["environment"] = r.environment
	}

	// The tier must be known before merging so its overlay sits
	// directly on the defaults, underneath file and env layers.
	tier := cast.ToString(base["environment"])
	for _, layer := range []map[string]any{fileLayer, envLayer, overrideLayer} {
		if v, ok := layer["environment"]; ok {
			tier = cast.ToString(v)
		}
	}

	merged := base
	layers := []map[string]any{tierOverlay(tier), fileLayer, envLayer, overrideLayer}
	for _, layer := range layers {
		if err := mergo.Merge(&merged, layer, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
			problems = append(problems, fmt.Errorf("merge configuration layer: %w", err))
		}
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		problems = append(problems, fmt.Errorf("encode merged configuration: %w", err))
		return DefaultConfig(), problems
	}
	cfg := &Config{}
	if err := DecodeStrict(bytes.NewReader(out), cfg); err != nil {
		problems = append(problems, ValidationError{
			Path:    "config",
			Message: err.Error(),
			Hint:    "check key names and value types against the documented schema",
		})
	}

	problems = append(problems, cfg.Validate()...)
	return cfg, problems
}

func toMap(c *Config) (map[string]any, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(out, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type envBinding struct {
	name string
	path []string
	kind string // string, int, int64, float, bool, duration, csv
}

var envBindings = []envBinding{
	{"LOGFAN_ENV", []string{"environment"}, "string"},
	{"LOGFAN_ROLE", []string{"role"}, "string"},
	{"LOGFAN_LEVEL_CLIENT", []string{"levels", "client"}, "string"},
	{"LOGFAN_LEVEL_SERVER", []string{"levels", "server"}, "string"},
	{"LOGFAN_FEATURE_CONSOLE", []string{"features", "console"}, "bool"},
	{"LOGFAN_FEATURE_FILE", []string{"features", "file"}, "bool"},
	{"LOGFAN_FEATURE_ERROR_TRACKING", []string{"features", "error_tracking"}, "bool"},
	{"LOGFAN_FEATURE_MONITORING", []string{"features", "monitoring"}, "bool"},
	{"LOGFAN_CONSOLE_COLORS", []string{"console", "colors"}, "string"},
	{"LOGFAN_HTTP_ENDPOINT", []string{"http", "endpoint"}, "string"},
	{"LOGFAN_HTTP_API_KEY", []string{"http", "api_key"}, "string"},
	{"LOGFAN_HTTP_FILENAME", []string{"http", "filename"}, "string"},
	{"LOGFAN_HTTP_BATCH_SIZE", []string{"http", "batch_size"}, "int"},
	{"LOGFAN_HTTP_FLUSH_INTERVAL", []string{"http", "flush_interval"}, "duration"},
	{"LOGFAN_HTTP_MAX_RETRIES", []string{"http", "max_retries"}, "int"},
	{"LOGFAN_FILE_PATH", []string{"file", "path"}, "string"},
	{"LOGFAN_FILE_MAX_SIZE", []string{"file", "max_size"}, "int64"},
	{"LOGFAN_FILE_MAX_FILES", []string{"file", "max_files"}, "int"},
	{"LOGFAN_FILE_QUEUE_SIZE", []string{"file", "queue_size"}, "int"},
	{"LOGFAN_TRACKING_ENDPOINT", []string{"tracking", "endpoint"}, "string"},
	{"LOGFAN_TRACKING_KEY", []string{"tracking", "key"}, "string"},
	{"LOGFAN_TRACKING_RELEASE", []string{"tracking", "release"}, "string"},
	{"LOGFAN_TRACKING_SAMPLE_RATE", []string{"tracking", "sample_rate"}, "float"},
	{"LOGFAN_ROLLOUT_PERCENTAGE", []string{"rollout", "percentage"}, "int"},
	{"LOGFAN_ROLLOUT_COMPONENTS", []string{"rollout", "components"}, "csv"},
	{"LOGFAN_ROLLOUT_CANARY_USERS", []string{"rollout", "canary_users"}, "csv"},
}

// envOverlay builds a config layer from LOGFAN_* variables. Parse
// failures become problems rather than silently ignored values.
func envOverlay(lookup func(string) (string, bool)) (map[string]any, []error) {
	layer := map[string]any{}
	var problems []error
	for _, b := range envBindings {
		raw, ok := lookup(b.name)
		if !ok {
			continue
		}
		val, err := coerceEnv(b.kind, raw)
		if err != nil {
			problems = append(problems, ValidationError{
				Path:    "env." + b.name,
				Message: fmt.Sprintf("cannot parse %q as %s", raw, b.kind),
			})
			continue
		}
		setPath(layer, b.path, val)
	}
	return layer, problems
}

func coerceEnv(kind, raw string) (any, error) {
	switch kind {
	case "int":
		return cast.ToIntE(raw)
	case "int64":
		return cast.ToInt64E(raw)
	case "float":
		return cast.ToFloat64E(raw)
	case "bool":
		return cast.ToBoolE(raw)
	case "duration":
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	case "csv":
		return splitCSV(raw), nil
	default:
		return raw, nil
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setPath(m map[string]any, path []string, val any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = val
}
