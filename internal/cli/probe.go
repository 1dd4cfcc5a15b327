package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/resilience/internal/infra/rpc"
)

var (
	probeTimeout time.Duration
	probeService string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Call a remote endpoint under the network retry policy",
}

var probeHTTPCmd = &cobra.Command{
	Use:   "http URL",
	Short: "GET a JSON endpoint",
	Args:  cobra.ExactArgs(1),
	Run:   runProbeHTTP,
}

var probeGRPCCmd = &cobra.Command{
	Use:   "grpc TARGET",
	Short: "Call the standard gRPC health service",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbeGRPC,
}

func init() {
	probeCmd.PersistentFlags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "request timeout (per attempt for http, overall for grpc)")
	probeGRPCCmd.Flags().StringVar(&probeService, "service", "", "service name to check (empty for the server)")
	probeCmd.AddCommand(probeHTTPCmd, probeGRPCCmd)
	rootCmd.AddCommand(probeCmd)
}

func runProbeHTTP(cmd *cobra.Command, args []string) {
	c := rpc.NewHTTPClient(probeTimeout, newExecutor(), policyByName("network"))

	var out any
	exitOnError("Probe failed", c.Do(cmd.Context(), http.MethodGet, args[0], nil, &out))
	fmt.Printf("%v\n", out)
}

func runProbeGRPC(cmd *cobra.Command, args []string) error {
	conn, err := rpc.NewGRPCConn(args[0], newExecutor(), policyByName("network"))
	if err != nil {
		return fmt.Errorf("failed to create gRPC client: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: probeService})
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	fmt.Println(resp.GetStatus().String())
	return nil
}
