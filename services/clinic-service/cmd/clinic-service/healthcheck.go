package main

import (
	"context"
	"fmt"
	"time"

	libconfig "github.com/md-rashed-zaman/clinicflow/libs/config"
	"github.com/md-rashed-zaman/clinicflow/libs/grpcx"
	"github.com/spf13/cobra"
)

// healthcheckCmd probes a running server over gRPC health; it is meant for
// container HEALTHCHECK directives where no HTTP client is installed.
func healthcheckCmd(envFile *string) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Exit non-zero unless the local server reports SERVING",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := libconfig.New(*envFile)
			if addr == "" {
				port, err := libconfig.Port(v, "GRPC_PORT", "9090")
				if err != nil {
					return err
				}
				addr = "127.0.0.1:" + port
			}
			service := libconfig.String(v, "SERVICE_NAME", "clinic-service")
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := grpcx.CheckHealth(ctx, addr, service, timeout); err != nil {
				return fmt.Errorf("unhealthy: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default 127.0.0.1:$GRPC_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "Probe timeout")
	return cmd
}
