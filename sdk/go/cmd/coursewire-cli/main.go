// coursewire-cli is a command-line interface for the coursewire media service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	baseURL     string
	accessToken string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coursewire-cli",
		Short: "Coursewire CLI - resumable media uploads from the command line",
		Long: `Coursewire CLI drives the coursewire media service: resumable chunked
uploads with progress, plus session status and cancellation.

Configuration:
  Set COURSEWIRE_URL and COURSEWIRE_TOKEN environment variables, or use --url and --token flags.

Examples:
  coursewire-cli upload lecture.mp4
  coursewire-cli status 0b9df365-5f8c-4f9e-9a41-7205cba12c3d
  coursewire-cli cancel 0b9df365-5f8c-4f9e-9a41-7205cba12c3d`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", os.Getenv("COURSEWIRE_URL"), "Coursewire server URL (or COURSEWIRE_URL env)")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", os.Getenv("COURSEWIRE_TOKEN"), "Access token (or COURSEWIRE_TOKEN env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(cancelCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// checkConfig validates that required configuration is present.
func checkConfig() error {
	if baseURL == "" {
		return fmt.Errorf("server URL is required (use --url or COURSEWIRE_URL environment variable)")
	}
	if accessToken == "" {
		return fmt.Errorf("access token is required (use --token or COURSEWIRE_TOKEN environment variable)")
	}
	return nil
}

// formatBytes renders a byte count in a human-readable unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
