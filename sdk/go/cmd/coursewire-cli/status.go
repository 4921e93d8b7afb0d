package main

import (
	"context"
	"fmt"

	coursewire "github.com/coursewire/coursewire/sdk/go"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the state of an upload session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfig(); err != nil {
				return err
			}

			client, err := coursewire.NewClient(coursewire.ClientConfig{
				BaseURL:     baseURL,
				AccessToken: accessToken,
			})
			if err != nil {
				return err
			}

			session, err := client.GetUploadStatus(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Session:  %s\n", session.SessionID)
			fmt.Printf("Filename: %s\n", session.Filename)
			fmt.Printf("Status:   %s\n", session.Status)
			fmt.Printf("Progress: %.1f%% (%d/%d chunks)\n", session.ProgressPercentage, session.UploadedChunks, session.TotalChunks)
			fmt.Printf("Size:     %s\n", formatBytes(session.FileSize))
			fmt.Printf("Expires:  %s\n", session.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel an upload session and discard its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfig(); err != nil {
				return err
			}

			client, err := coursewire.NewClient(coursewire.ClientConfig{
				BaseURL:     baseURL,
				AccessToken: accessToken,
			})
			if err != nil {
				return err
			}

			if err := client.CancelUpload(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("Upload cancelled")
			return nil
		},
	}
}
