package grpcx

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestCheckHealth_ServingAndNotServing(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, hs := NewServer("clinic-service")
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	ctx := context.Background()
	if err := CheckHealth(ctx, lis.Addr().String(), "clinic-service", 2*time.Second); err != nil {
		t.Fatalf("expected serving, got %v", err)
	}

	hs.SetServingStatus("clinic-service", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := CheckHealth(ctx, lis.Addr().String(), "clinic-service", 2*time.Second); err == nil {
		t.Fatalf("expected not serving error")
	}
}

func TestWatchReadiness_ReflectsCheck(t *testing.T) {
	_, hs := NewServer("")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		WatchReadiness(ctx, hs, "db", time.Hour, func(context.Context) error { return errors.New("down") })
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "db"})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("status never flipped to NOT_SERVING")
}

func TestUnaryServerRequestIDInterceptor_KeepsOrMints(t *testing.T) {
	intercept := UnaryServerRequestIDInterceptor()
	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-42"))
	if _, err := intercept(ctx, nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if seen != "req-42" {
		t.Fatalf("expected incoming id, got %q", seen)
	}

	if _, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if seen == "" || seen == "req-42" {
		t.Fatalf("expected a minted id, got %q", seen)
	}
}
