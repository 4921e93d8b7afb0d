package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	coursewire "github.com/coursewire/coursewire/sdk/go"
	"github.com/spf13/cobra"
)

func uploadCmd() *cobra.Command {
	var (
		chunkSize  int64
		mimeType   string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a media file",
		Long: `Upload a file as a resumable chunked upload.

An interrupted upload of the same file resumes where it left off; just run
the command again.

Examples:
  coursewire-cli upload lecture.mp4
  coursewire-cli upload lecture.mp4 --chunk-size 4194304
  coursewire-cli upload notes.pdf --mime-type application/pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfig(); err != nil {
				return err
			}

			filePath := args[0]
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("file not found: %s", filePath)
			}

			client, err := coursewire.NewClient(coursewire.ClientConfig{
				BaseURL:     baseURL,
				AccessToken: accessToken,
			})
			if err != nil {
				return err
			}

			opts := &coursewire.UploadOptions{
				ChunkSize: chunkSize,
				MimeType:  mimeType,
			}
			if !noProgress {
				opts.OnProgress = func(percent float64) {
					fmt.Printf("\r%s %5.1f%% of %s", progressBar(percent), percent, formatBytes(info.Size()))
				}
			}

			uploader := coursewire.NewUploader(client)
			session, err := uploader.UploadFile(context.Background(), filePath, opts)
			if !noProgress {
				fmt.Println()
			}
			if err != nil {
				return err
			}

			fmt.Printf("Upload complete\n")
			fmt.Printf("  Session:  %s\n", session.SessionID)
			fmt.Printf("  Filename: %s\n", session.Filename)
			fmt.Printf("  Size:     %s\n", formatBytes(session.FileSize))
			fmt.Printf("  Chunks:   %d\n", session.TotalChunks)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chunkSize, "chunk-size", 0, "Chunk size in bytes (default 1 MiB)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "Declared MIME type (server sniffs the real one)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// progressBar renders a fixed-width text progress bar.
func progressBar(percent float64) string {
	const width = 30
	filled := int(percent / 100 * width)
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
