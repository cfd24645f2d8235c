package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/standardbeagle/pixelgate/internal/cache"
	"github.com/standardbeagle/pixelgate/internal/capture"
	"github.com/standardbeagle/pixelgate/internal/config"
	"github.com/standardbeagle/pixelgate/internal/orchestrator"
	"github.com/standardbeagle/pixelgate/internal/report"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest>",
	Short: "Run visual validation for the screens in a manifest",
	Long: `Validate captures every screen in the manifest at each configured
viewport, compares the captures against the reference images, and writes
a JSON summary plus an HTML report. The process exits non-zero when any
job fails or errors, for CI gating.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("out", "pixelgate-report", "Output directory for report files")
	validateCmd.Flags().Bool("force", false, "Bypass the result cache")
	validateCmd.Flags().Bool("no-cache", false, "Disable the result cache entirely")
}

// manifest is the screen list consumed from the invoking CI layer.
type manifest struct {
	Screens []orchestrator.Screen `mapstructure:"screens"`
}

func loadManifest(path string) (*manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Screens) == 0 {
		return nil, fmt.Errorf("manifest %s lists no screens", path)
	}
	return &m, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if force, _ := cmd.Flags().GetBool("force"); force {
		cfg.ForceRefresh = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	jobs, err := orchestrator.ExpandJobs(m.Screens, cfg.Viewports)
	if err != nil {
		return err
	}

	var store *cache.Store
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		store, err = cache.NewStore(cfg.CacheDir)
		if err != nil {
			return err
		}
	}

	service, err := capture.NewService(cfg.CaptureOptions())
	if err != nil {
		return fmt.Errorf("start capture service: %w", err)
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := orchestrator.New(service, store, cfg)
	o.OnProgress = printProgress

	batch, err := o.Run(ctx, jobs)
	if err != nil {
		return err
	}

	summary := report.Generate(batch)
	outDir, _ := cmd.Flags().GetString("out")
	if err := writeReports(summary, outDir); err != nil {
		return err
	}

	printSummary(summary, outDir)
	if summary.Failed > 0 || summary.Errored > 0 {
		os.Exit(1)
	}
	return nil
}

func writeReports(summary *report.Summary, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	jsonFile, err := os.Create(filepath.Join(outDir, "summary.json"))
	if err != nil {
		return err
	}
	defer jsonFile.Close()
	if err := summary.WriteJSON(jsonFile); err != nil {
		return err
	}

	htmlFile, err := os.Create(filepath.Join(outDir, "report.html"))
	if err != nil {
		return err
	}
	defer htmlFile.Close()
	return summary.WriteHTML(htmlFile)
}

func printProgress(p orchestrator.Progress) {
	switch p.Status {
	case orchestrator.StatusComplete:
		fmt.Printf("  %s %s\n", color.GreenString("done"), p.JobID)
	case orchestrator.StatusFailed:
		fmt.Printf("  %s %s: %v\n", color.RedString("fail"), p.JobID, p.Err)
	}
}

func printSummary(s *report.Summary, outDir string) {
	fmt.Println()
	fmt.Printf("%s passed, %s failed, %s errored (%d jobs, avg quality %.1f)\n",
		color.GreenString("%d", s.Passed),
		color.RedString("%d", s.Failed),
		color.YellowString("%d", s.Errored),
		s.Total, s.AverageQuality)
	fmt.Printf("report: %s\n", filepath.Join(outDir, "report.html"))
}
