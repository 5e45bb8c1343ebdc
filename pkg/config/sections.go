package config

const (
	ColorsAuto   = "auto"
	ColorsAlways = "always"
	ColorsNever  = "never"
)

// LevelsConfig holds the per-role level floors.
type LevelsConfig struct {
	Client string `yaml:"client"` // debug, info, warn, error
	Server string `yaml:"server"`
}

// FeaturesConfig toggles pipeline components independently.
type FeaturesConfig struct {
	Console       bool `yaml:"console"`        // colored console output
	File          bool `yaml:"file"`           // durable delivery: HTTP on clients, disk on servers
	ErrorTracking bool `yaml:"error_tracking"` // error capture with breadcrumbs
	Monitoring    bool `yaml:"monitoring"`     // pipeline health counters
}

// ConsoleConfig controls the console sink.
type ConsoleConfig struct {
	Colors string `yaml:"colors"` // auto, always, never
}

// HTTPConfig controls batched delivery to the ingest service. Used
// when the role is client.
type HTTPConfig struct {
	Endpoint      string   `yaml:"endpoint"` // e.g. https://ingest.example.com
	APIKey        string   `yaml:"api_key"`
	Filename      string   `yaml:"filename"` // server-side file, derived from session when empty
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	MaxRetries    int      `yaml:"max_retries"`
}

// FileConfig controls the rotating disk sink. Used when the role is
// server.
type FileConfig struct {
	Path      string `yaml:"path"`
	MaxSize   int64  `yaml:"max_size"` // bytes before rotation
	MaxFiles  int    `yaml:"max_files"`
	QueueSize int    `yaml:"queue_size"`
}

// TrackingConfig controls the error tracking sink.
type TrackingConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	Key             string  `yaml:"key"`
	Release         string  `yaml:"release"`
	SampleRate      float64 `yaml:"sample_rate"` // 0..1
	BreadcrumbLimit int     `yaml:"breadcrumb_limit"`
}

// RedactConfig tunes the shared redactor.
type RedactConfig struct {
	MaxDepth     int      `yaml:"max_depth"`
	MaxStringLen int      `yaml:"max_string_len"`
	MaxArrayLen  int      `yaml:"max_array_len"`
	ExtraFields  []string `yaml:"extra_fields"` // additional sensitive field names
}

// RolloutConfig controls gradual component enablement.
type RolloutConfig struct {
	Percentage  int      `yaml:"percentage"` // 0..100
	Components  []string `yaml:"components"` // allow-list; replaces percentage when set
	CanaryUsers []string `yaml:"canary_users"`
}
