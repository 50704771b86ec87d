package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"roomplane/internal/orchestrator"
	"roomplane/internal/scheduler"

	"github.com/google/uuid"
)

type stubController struct {
	enabled bool
	builds  int
}

func (s *stubController) SetEnabled(enabled bool) { s.enabled = enabled }
func (s *stubController) Enabled() bool { return s.enabled }
func (s *stubController) Pending() []scheduler.JobInfo { return nil }
func (s *stubController) Status(ctx context.Context, recent int) (*orchestrator.Report, error) {
	return &orchestrator.Report{}, nil
}
func (s *stubController) ScheduleRoomByID(ctx context.Context, id uuid.UUID) ([]orchestrator.PlannedJob, error) {
	return nil, nil
}
func (s *stubController) BuildPlaylist(ctx context.Context, id uuid.UUID) error {
	s.builds++
	return nil
}
func (s *stubController) StartStream(ctx context.Context, id uuid.UUID) error { return nil }
func (s *stubController) Notify(ctx context.Context, id uuid.UUID, lead int) error { return nil }
func (s *stubController) Cleanup(ctx context.Context, id uuid.UUID) error { return nil }
func (s *stubController) Launch(ctx context.Context, id uuid.UUID) error { return nil }

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, ctrl *stubController) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	handler := NewHandler(Options{
		AdminKey: "admin-secret",
		HLSDir:   dir,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, ctrl, okPinger{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, dir
}

func do(t *testing.T, method, url, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_AdminRequiresKey(t *testing.T) {
	ctrl := &stubController{}
	srv, _ := newTestServer(t, ctrl)
	id := uuid.NewString()

	if resp := do(t, http.MethodPost, srv.URL+"/admin/rooms/"+id+"/build", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("without key: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/admin/rooms/"+id+"/build", "wrong"); resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong key: %d", resp.StatusCode)
	}
	if ctrl.builds != 0 {
		t.Fatal("unauthorized request reached the controller")
	}

	resp := do(t, http.MethodPost, srv.URL+"/admin/rooms/"+id+"/build", "admin-secret")
	if resp.StatusCode != http.StatusOK || ctrl.builds != 1 {
		t.Errorf("authorized build: status %d builds %d", resp.StatusCode, ctrl.builds)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestRoutes_MethodsAndScheduler(t *testing.T) {
	ctrl := &stubController{}
	srv, _ := newTestServer(t, ctrl)

	if resp := do(t, http.MethodGet, srv.URL+"/admin/scheduler/enable", "admin-secret"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on enable: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/admin/scheduler/enable", "admin-secret"); resp.StatusCode != http.StatusOK || !ctrl.enabled {
		t.Errorf("enable: status %d enabled %v", resp.StatusCode, ctrl.enabled)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/admin/rooms/status", "admin-secret"); resp.StatusCode != http.StatusOK {
		t.Errorf("status: %d", resp.StatusCode)
	}
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	srv, dir := newTestServer(t, &stubController{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if resp := do(t, http.MethodGet, srv.URL+path, ""); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: %d", path, resp.StatusCode)
		}
	}

	roomDir := filepath.Join(dir, "r1")
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(roomDir, "stream.m3u8"), []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := do(t, http.MethodGet, srv.URL+"/hls/r1/stream.m3u8", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manifest: %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "#EXTM3U\n" {
		t.Errorf("manifest body %q", body)
	}
	if resp.Header.Get("Cache-Control") != "no-cache" || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected headers: %v", resp.Header)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/hls/r1/missing.ts", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing segment: %d", resp.StatusCode)
	}
}
