// Package pipeline assembles the logger from configuration: which
// sinks run, with which settings, behind which rollout gate. Broken
// configuration never silences an application; it degrades the
// pipeline to console output and reports every problem found.
package pipeline

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/multierr"

	"github.com/DeBrosOfficial/logfan/pkg/config"
	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/monitor"
	"github.com/DeBrosOfficial/logfan/pkg/sinks/console"
	"github.com/DeBrosOfficial/logfan/pkg/sinks/errtrack"
	"github.com/DeBrosOfficial/logfan/pkg/sinks/filesink"
	"github.com/DeBrosOfficial/logfan/pkg/sinks/httpsink"
)

// Report describes what Build actually assembled.
type Report struct {
	// Degraded is set when any problem forced the pipeline below the
	// requested configuration.
	Degraded bool

	// Problems lists everything that went wrong, in found order.
	Problems []error

	// Err combines Problems for callers that want a single error.
	Err error

	// Sinks names the sinks that ended up attached.
	Sinks []string

	// Monitor is non-nil when the monitoring component is active.
	Monitor *monitor.Monitor
}

type options struct {
	configOpts []config.Option
	consoleOut io.Writer
	transport  errtrack.Transport
	httpClient *http.Client
	fallback   *logging.Fallback
	userID     string
}

// Option adjusts pipeline assembly.
type Option func(*options)

// WithConfigFile layers a YAML file into config resolution. Only used
// by New.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configOpts = append(o.configOpts, config.WithFile(path)) }
}

// WithEnvironment forces the environment tier. Only used by New.
func WithEnvironment(env string) Option {
	return func(o *options) { o.configOpts = append(o.configOpts, config.WithEnvironment(env)) }
}

// WithOverrides layers programmatic config values. Only used by New.
func WithOverrides(values map[string]any) Option {
	return func(o *options) { o.configOpts = append(o.configOpts, config.WithOverrides(values)) }
}

// WithConfigOptions passes raw resolver options through to
// config.Resolve. Only used by New.
func WithConfigOptions(opts ...config.Option) Option {
	return func(o *options) { o.configOpts = append(o.configOpts, opts...) }
}

// WithConsoleWriter redirects console output, mainly for tests.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *options) { o.consoleOut = w }
}

// WithTransport replaces the error tracking transport.
func WithTransport(tr errtrack.Transport) Option {
	return func(o *options) { o.transport = tr }
}

// WithHTTPClient replaces the HTTP client used by network sinks.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithFallback replaces the internal diagnostics logger.
func WithFallback(f *logging.Fallback) Option {
	return func(o *options) { o.fallback = f }
}

// WithUserID attributes this process's entries to a user and lets
// canary rollout rules match them.
func WithUserID(id string) Option {
	return func(o *options) { o.userID = id }
}

// New resolves configuration from defaults, tier, file, environment
// variables and overrides, then builds the pipeline.
func New(opts ...Option) (*logging.MultiLogger, *Report) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	cfg, problems := config.Resolve(o.configOpts...)
	return build(cfg, problems, o)
}

// Build assembles the pipeline for an already resolved config.
func Build(cfg *config.Config, opts ...Option) (*logging.MultiLogger, *Report) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return build(cfg, cfg.Validate(), o)
}

func build(cfg *config.Config, problems []error, o options) (*logging.MultiLogger, *Report) {
	fallback := o.fallback
	if fallback == nil {
		fallback = logging.StderrFallback()
	}
	logger := logging.New(logging.Options{
		MinLevel: cfg.MinLevel(),
		UserID:   o.userID,
		Fallback: fallback,
	})
	report := &Report{Problems: problems}

	newConsole := func() *console.Sink {
		return console.New(console.Options{
			Writer: o.consoleOut,
			Colors: console.ColorMode(cfg.Console.Colors),
		})
	}

	if len(problems) > 0 {
		// A config this broken cannot be trusted to drive network or
		// disk sinks. Console keeps the application audible while the
		// problems are printed for the operator.
		for _, p := range problems {
			fallback.Errorf("config problem: %v", p)
		}
		fallback.Warnf("logging degraded to console only (%d config problems)", len(problems))
		logger.AddSink(newConsole())
		return finish(logger, report)
	}

	redactor := cfg.Redactor()
	gate := cfg.Gate()
	enabled := func(component string) bool {
		return gate.EnabledFor(component, o.userID)
	}

	if cfg.Features.Console && enabled("console") {
		logger.AddSink(newConsole())
	}

	var mon *monitor.Monitor
	if cfg.Features.Monitoring && enabled("monitoring") {
		mon = monitor.New()
		logger.AddSink(mon)
		report.Monitor = mon
	}

	if cfg.Features.File && enabled("file") {
		if cfg.Role == config.RoleServer {
			fs, err := filesink.New(filesink.Options{
				Path:      cfg.File.Path,
				MaxSize:   cfg.File.MaxSize,
				MaxFiles:  cfg.File.MaxFiles,
				QueueSize: cfg.File.QueueSize,
				Redactor:  redactor,
				Fallback:  fallback,
			})
			if err != nil {
				report.Problems = append(report.Problems, fmt.Errorf("file sink: %w", err))
			} else {
				logger.AddSink(fs)
			}
		} else {
			retries := cfg.HTTP.MaxRetries
			if retries == 0 {
				retries = -1 // config zero means no retries, not the default
			}
			hs, err := httpsink.New(httpsink.Options{
				Endpoint:      cfg.HTTP.Endpoint,
				Filename:      cfg.HTTP.Filename,
				APIKey:        cfg.HTTP.APIKey,
				BatchSize:     cfg.HTTP.BatchSize,
				FlushInterval: cfg.HTTP.FlushInterval.Std(),
				MaxRetries:    retries,
				HTTPClient:    o.httpClient,
				Redactor:      redactor,
				Fallback:      fallback,
			})
			if err != nil {
				report.Problems = append(report.Problems, fmt.Errorf("http sink: %w", err))
			} else {
				logger.AddSink(hs)
			}
		}
	}

	if cfg.Features.ErrorTracking && enabled("errtrack") {
		var onCapture func(errtrack.Event)
		if mon != nil {
			onCapture = func(errtrack.Event) { mon.NoteForwarded() }
		}
		es, err := errtrack.Init(errtrack.Options{
			Endpoint:        cfg.Tracking.Endpoint,
			Key:             cfg.Tracking.Key,
			Environment:     cfg.Environment,
			Release:         cfg.Tracking.Release,
			SampleRate:      cfg.Tracking.SampleRate,
			BreadcrumbLimit: cfg.Tracking.BreadcrumbLimit,
			Redactor:        redactor,
			Transport:       o.transport,
			Fallback:        fallback,
			OnCapture:       onCapture,
			HTTPClient:      o.httpClient,
		})
		if err != nil {
			report.Problems = append(report.Problems, fmt.Errorf("error tracking: %w", err))
		} else {
			logger.AddSink(es)
		}
	}

	if len(report.Problems) > len(problems) {
		for _, p := range report.Problems[len(problems):] {
			fallback.Errorf("pipeline problem: %v", p)
		}
	}
	if len(logger.Sinks()) == 0 {
		fallback.Warnf("no sinks enabled; log entries will be discarded")
	}
	return finish(logger, report)
}

func finish(logger *logging.MultiLogger, report *Report) (*logging.MultiLogger, *Report) {
	report.Degraded = len(report.Problems) > 0
	report.Sinks = logger.Sinks()
	report.Err = multierr.Combine(report.Problems...)
	return logger, report
}
