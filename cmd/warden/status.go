// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// ServerStatus holds what the health probes report for a running server.
type ServerStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running warden server",
		Long: `Query the liveness and readiness probes on --metrics-addr and
report whether the server is running and its identity store is healthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if appCfg.MetricsAddr == "" {
				return oops.Code("CONFIG_INVALID").
					With("key", "metrics_addr").
					Errorf("status needs the observability address; set --metrics-addr")
			}
			return runStatus(cmd, cfg, appCfg.MetricsAddr)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "probe timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig, addr string) error {
	client := &http.Client{Timeout: cfg.timeout}
	status := queryServerStatus(cmd.Context(), client, addr)

	if cfg.jsonOutput {
		output, err := formatStatusJSON(status)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}
	cmd.Println(formatStatusTable(status))
	return nil
}

// queryServerStatus probes the liveness and readiness endpoints at addr.
func queryServerStatus(ctx context.Context, client *http.Client, addr string) ServerStatus {
	if ctx == nil {
		ctx = context.Background()
	}
	status := ServerStatus{Addr: addr}
	base := "http://" + addr

	code, err := probe(ctx, client, base+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	if code != http.StatusOK {
		status.Error = fmt.Sprintf("liveness returned %d", code)
		return status
	}
	status.Running = true

	code, err = probe(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = code == http.StatusOK
	if !status.Ready {
		status.Error = "identity store not ready"
	}
	return status
}

func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err //nolint:wrapcheck // reported as text
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err //nolint:wrapcheck // reported as text
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tSTATUS\tREADY\tDETAIL")
	_, _ = fmt.Fprintln(w, "----\t------\t-----\t------")

	state := "stopped"
	if status.Running {
		state = "running"
	}
	ready := "no"
	if status.Ready {
		ready = "yes"
	}
	detail := status.Error
	if detail == "" {
		detail = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status.Addr, state, ready, detail)

	_ = w.Flush()
	return b.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ServerStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
	}
	return string(data), nil
}
