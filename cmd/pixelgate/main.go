package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "pixelgate"
	appVersion = "0.3.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Visual regression validation engine",
	Long: `Pixelgate captures rendered screens through headless browser
sessions at multiple viewports, compares them against reference design
images (pixel diff, SSIM, PSNR), and produces machine-readable scores
plus human-reviewable comparison documents. Results are cached by
content hash so unchanged inputs never recompute.`,
	Version: appVersion,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a pixelgate config file (YAML)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(cacheCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
