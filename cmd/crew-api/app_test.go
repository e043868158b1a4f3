package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/CrewTrack/config"
	"github.com/BearBump/CrewTrack/internal/api/crewapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startApp(t *testing.T, opts crewAPIOpts) (grpcAddr, httpAddr string, stop func()) {
	t.Helper()
	reg := prometheus.NewRegistry()
	api := crewapi.New(nil, nil, nil, nil, crewapi.Options{Registry: reg})

	opts.grpcAddr = "127.0.0.1:0"
	opts.httpAddr = "127.0.0.1:0"
	opts.gatherer = reg
	addrs := make(chan [2]string, 1)
	opts.onListen = func(g, h string) { addrs <- [2]string{g, h} }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runCrewAPI(ctx, opts, api) }()

	var a [2]string
	select {
	case a = <-addrs:
	case err := <-done:
		cancel()
		t.Fatalf("app exited early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("timeout waiting for listeners")
	}
	// ждём, пока серверы поднимутся (очень коротко)
	time.Sleep(50 * time.Millisecond)

	return a[0], a[1], func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting servers to stop")
		}
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRunCrewAPI_ServesProbesMetricsAndSwagger(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	_, httpAddr, stop := startApp(t, crewAPIOpts{swaggerPath: sw})
	defer stop()

	code, body := get(t, "http://"+httpAddr+"/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "ok")

	code, _ = get(t, "http://"+httpAddr+"/readyz")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, "http://"+httpAddr+"/swagger.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "\"swagger\"")

	code, body = get(t, "http://"+httpAddr+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "crewtrack_http_requests_total")
}

func TestRunCrewAPI_ReadyzReportsDependencyFailure(t *testing.T) {
	_, httpAddr, stop := startApp(t, crewAPIOpts{
		ready: func(ctx context.Context) error { return errors.New("postgres down") },
	})
	defer stop()

	code, body := get(t, "http://"+httpAddr+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, "unavailable")

	code, _ = get(t, "http://"+httpAddr+"/docs/index.html")
	require.Equal(t, http.StatusNotFound, code)
}

func TestRunCrewAPI_GRPCHealth(t *testing.T) {
	grpcAddr, _, stop := startApp(t, crewAPIOpts{})
	defer stop()

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRunCrewAPI_MissingSwaggerFile(t *testing.T) {
	err := runCrewAPI(context.Background(), crewAPIOpts{swaggerPath: "/nonexistent/swagger.json"}, nil)
	require.Error(t, err)
}

func TestSettingsDefaults(t *testing.T) {
	require.Equal(t, 15*time.Second, viewTTL(configWith(0, 0)))
	require.Equal(t, 30*time.Second, viewTTL(configWith(30, 0)))
	require.Equal(t, 5.0, trackRPS(configWith(0, 0)))
	require.Equal(t, 2.5, trackRPS(configWith(0, 2.5)))
}

func configWith(viewTTLSeconds int, rps float64) config.CrewTrackConfig {
	return config.CrewTrackConfig{TrackingViewTTLSeconds: viewTTLSeconds, TrackRequestsPerSecond: rps}
}
