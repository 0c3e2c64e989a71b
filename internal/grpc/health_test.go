package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dialHealth(t *testing.T, serviceToken string) (healthpb.HealthClient, func(bool)) {
	t.Helper()
	server, healthServer, err := NewServer(serviceToken)
	require.NoError(t, err)

	listener := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn), func(serving bool) { SetServing(healthServer, serving) }
}

func TestHealthStatus(t *testing.T) {
	client, setServing := dialHealth(t, "")
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	setServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealthRequiresServiceToken(t *testing.T) {
	client, setServing := dialHealth(t, "secret")
	setServing(true)
	req := &healthpb.HealthCheckRequest{Service: ServiceName}

	_, err := client.Check(context.Background(), req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	wrong := metadata.AppendToOutgoingContext(context.Background(), serviceTokenHeader, "nope")
	_, err = client.Check(wrong, req)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	ok := metadata.AppendToOutgoingContext(context.Background(), serviceTokenHeader, "secret")
	resp, err := client.Check(ok, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestInterceptorRequiresToken(t *testing.T) {
	_, err := NewServiceAuthUnaryInterceptor("")
	assert.Error(t, err)
}
