// Command healthcheck probes the booking service's gRPC health endpoint and exits non-zero
// unless it reports SERVING. It is meant for container health checks.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/dentalbook/libs/config"
	"github.com/md-rashed-zaman/dentalbook/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	port, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	addr := config.String("HEALTHCHECK_ADDR", "localhost:"+port)
	service := config.String("SERVICE_NAME", "booking-service")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		fmt.Fprintln(os.Stderr, "unhealthy: status", resp.GetStatus())
		os.Exit(1)
	}
	fmt.Println("ok")
}
