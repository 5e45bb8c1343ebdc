package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/DeBrosOfficial/logfan/pkg/config"
	"github.com/DeBrosOfficial/logfan/pkg/monitor"
	"github.com/DeBrosOfficial/logfan/pkg/pipeline"
)

var (
	selftestConfig string
	selftestEnv    string
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Build the local pipeline and verify fan-out and redaction",
	RunE:  runSelftest,
}

func init() {
	selftestCmd.Flags().StringVar(&selftestConfig, "config", "", "Pipeline config file")
	selftestCmd.Flags().StringVar(&selftestEnv, "environment", "", "Environment tier (development, staging, production)")
}

func runSelftest(cmd *cobra.Command, args []string) error {
	var cfgOpts []config.Option
	if selftestConfig != "" {
		cfgOpts = append(cfgOpts, config.WithFile(selftestConfig))
	}
	if selftestEnv != "" {
		cfgOpts = append(cfgOpts, config.WithEnvironment(selftestEnv))
	}

	cfg, problems := config.Resolve(cfgOpts...)
	logger, report := pipeline.Build(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Close(ctx)
	}()

	fmt.Printf("Environment: %s, role: %s\n", cfg.Environment, cfg.Role)
	fmt.Printf("Sinks: %s\n", strings.Join(report.Sinks, ", "))
	for _, p := range problems {
		fmt.Printf("⚠️  %v\n", p)
	}
	if report.Degraded {
		fmt.Println("⚠️  pipeline is degraded, running with reduced sinks")
	}

	mon := report.Monitor
	if mon == nil {
		mon = monitor.New()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Println("\nRunning self-test...")
	if err := mon.SelfTest(ctx, logger, cfg.Redactor()); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Printf("❌ %v\n", e)
		}
		return fmt.Errorf("self-test failed")
	}
	fmt.Println("✅ Fan-out and redaction verified")

	for sink, n := range logger.DropCounts() {
		if n > 0 {
			fmt.Printf("⚠️  sink %s dropped %d entries\n", sink, n)
		}
	}

	if cpuPct, err := monitor.CPUUsagePercent(250 * time.Millisecond); err == nil {
		fmt.Printf("\nHost CPU: %.0f%%\n", cpuPct)
	}

	return nil
}
