package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/ipc"
	"github.com/ninebox-hr/ninebox-shell/internal/updatecheck"
)

const clientTimeout = 10 * time.Second

func getStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the backend status reported by the running shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadShellConfig(cmd)
			if err != nil {
				return err
			}
			h, err := readHandoff(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("no running shell found in %s: %w", cfg.DataDir, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
			defer cancel()

			status, err := fetchStatus(ctx, http.DefaultClient, h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s\n", status.Status)
			if status.Port > 0 {
				fmt.Fprintf(out, "Backend:  http://localhost:%d (pid %d)\n", status.Port, status.PID)
			}
			if status.Message != "" {
				fmt.Fprintf(out, "Message:  %s\n", status.Message)
			}
			fmt.Fprintf(out, "Restarts: %d\n", status.RestartAttempts)
			fmt.Fprintf(out, "Since:    %s\n", status.Since.Format(time.RFC3339))
			return nil
		},
	}
}

// fetchStatus asks the running shell for its status over the IPC API
func fetchStatus(ctx context.Context, client *http.Client, h handoff) (*ipc.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+h.Addr+"/api/v1/status", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set(ipc.TokenHeader, h.Token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach shell at %s: %w", h.Addr, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool               `json:"success"`
		Data    ipc.StatusResponse `json:"data"`
		Error   string             `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("invalid response from shell: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("shell returned %d: %s", resp.StatusCode, envelope.Error)
	}
	return &envelope.Data, nil
}

func getCheckUpdateCommand() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "check-update",
		Short: "Check the release feed for a newer shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadShellConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			checker := updatecheck.New(zap.NewNop(), version, cfg.UpdateCheck.FeedURL)
			info := checker.CheckNow(ctx)

			out := cmd.OutOrStdout()
			if info.CheckError != "" {
				return fmt.Errorf("update check failed: %s", info.CheckError)
			}
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "9-box shell %s is up to date\n", info.CurrentVersion)
				return nil
			}

			fmt.Fprintf(out, "Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintf(out, "Release notes: %s\n", info.ReleaseURL)
			}
			if !apply {
				return nil
			}
			if info.DownloadURL == "" {
				return fmt.Errorf("release %s has no asset for this platform", info.LatestVersion)
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate shell executable: %w", err)
			}
			if err := checker.Apply(ctx, info.DownloadURL, exe); err != nil {
				return err
			}
			fmt.Fprintf(out, "Updated to %s, restart the shell to use it\n", info.LatestVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Download and install the update in place")
	return cmd
}
