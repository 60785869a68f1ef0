package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "rankbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "rank_list_daily.html")

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("rankbot_up 1\n")) })
	s := New(Config{}, Deps{
		Metrics:    metrics,
		ReportPath: reportPath,
		Health:     func() map[string]any { return map[string]any{"roster": 3} },
	}, logx.Nop())
	h := s.Handler()

	code, body := get(t, h, "/healthz", nil)
	if code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", code)
	}
	var health map[string]any
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("/healthz body %q: %v", body, err)
	}
	if health["status"] != "ok" || health["roster"] != float64(3) {
		t.Fatalf("/healthz = %v", health)
	}

	if code, body := get(t, h, "/metrics", nil); code != http.StatusOK || body != "rankbot_up 1\n" {
		t.Fatalf("/metrics = %d %q", code, body)
	}

	if code, _ := get(t, h, "/report", nil); code != http.StatusNotFound {
		t.Fatalf("/report before write status = %d, want 404", code)
	}
	if err := os.WriteFile(reportPath, []byte("<html>ok</html>"), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}
	if code, body := get(t, h, "/report", nil); code != http.StatusOK || body != "<html>ok</html>" {
		t.Fatalf("/report = %d %q", code, body)
	}

	if code, _ := get(t, h, "/debug/pprof/", nil); code != http.StatusNotFound {
		t.Fatalf("pprof without opt-in status = %d, want 404", code)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{Token: "s3cret", Pprof: true}, Deps{}, logx.Nop()).Handler()
	cases := []struct {
		name   string
		target string
		hdr    map[string]string
		want   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"bad bearer", "/healthz", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"good bearer", "/healthz", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"good query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"bad query wins over header", "/healthz?token=x", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusUnauthorized},
		{"pprof guarded", "/debug/pprof/", nil, http.StatusUnauthorized},
		{"pprof open with token", "/debug/pprof/?token=s3cret", nil, http.StatusOK},
	}
	for _, tc := range cases {
		if code, _ := get(t, h, tc.target, tc.hdr); code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, code, tc.want)
		}
	}
}

func TestRunRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	err := New(Config{Addr: "0.0.0.0:0"}, Deps{}, logx.Nop()).Run(context.Background())
	if !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("Run error = %v, want ErrInsecureBind", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	s := New(Config{}, Deps{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:80":   true,
		"[::1]:9000":     true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.5:8080":  false,
		"bogus":          false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
