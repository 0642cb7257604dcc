package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *GRPCServer) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

func TestGRPCHealthServing(t *testing.T) {
	srv := NewGRPCServer(ReadyProbe{}, "1.2.3")
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first refresh, got %s", resp.GetStatus())
	}

	if err := srv.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("boom") }

func TestGRPCHealthFailure(t *testing.T) {
	srv := NewGRPCServer(ReadyProbe{DB: failingPinger{}}, "1.0.0")
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := srv.Refresh(ctx); err == nil {
		t.Fatal("expected readiness error")
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}
}

func TestReadyProbeNamesFailingDependency(t *testing.T) {
	err := ReadyProbe{Cache: failingPinger{}}.Check(context.Background())
	if err == nil || err.Error() != "cache: boom" {
		t.Fatalf("unexpected error: %v", err)
	}
}
