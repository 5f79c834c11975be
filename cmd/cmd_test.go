package cmd

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/config"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/server"
)

type cliTestEnv struct {
	configPath string
	imagePath  string
	dir        string
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// setupCLITestEnv starts an in-memory reference backend and writes a client
// config pointing at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	backendConfig := filepath.Join(dir, "backend.yaml")
	writeFile(t, backendConfig, "preference:\n  store: memory\nserver:\n  ocr_ready_after: 0\n")
	cfg, err := config.Load(backendConfig)
	if err != nil {
		t.Fatalf("load backend config: %v", err)
	}
	backend, err := server.NewBackend(t.Context(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build backend: %v", err)
	}
	srv := httptest.NewServer(backend.Router)
	t.Cleanup(func() {
		srv.Close()
		_ = backend.Close()
	})

	return newCLIEnv(t, dir, srv.URL)
}

func newCLIEnv(t *testing.T, dir, apiBase string) *cliTestEnv {
	t.Helper()
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, strings.Join([]string{
		"api_base: " + apiBase,
		"log:",
		"  level: error",
		"poll:",
		"  interval: 1200ms",
		"  timeout: 5s",
		"preference:",
		"  store: file",
		"  path: " + filepath.Join(dir, "prefs", "preferences.json"),
		"server:",
		"  jwt_secret: cli-secret",
	}, "\n"))

	imagePath := filepath.Join(dir, "label.png")
	writeFile(t, imagePath, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	return &cliTestEnv{configPath: configPath, imagePath: imagePath, dir: dir}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, out)
	}
}

func TestScanPrintsRecognisedText(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "scan", env.imagePath)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	requireContains(t, out, "Submitted analysis")
	requireContains(t, out, "ocr_completed")
	requireContains(t, out, "Recognised text: 水,糖,盐")

	history, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	requireContains(t, history, "showing 1 of 1")
}

func TestScanConfirmUsesSavedPreference(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.run(t, "preference", "set", "kids"); err != nil {
		t.Fatalf("preference set failed: %v", err)
	}
	out, err := env.run(t, "scan", "--confirm", env.imagePath)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	requireContains(t, out, "Confirmed with preference kids")
	requireContains(t, out, "llm_pending")
}

func TestPreferenceCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "preference", "get")
	if err != nil {
		t.Fatalf("preference get failed: %v", err)
	}
	if strings.TrimSpace(out) != "normal" {
		t.Fatalf("expected default normal, got %q", out)
	}

	if _, err := env.run(t, "preference", "set", "Low_Sodium"); err != nil {
		t.Fatalf("preference set failed: %v", err)
	}
	out, _ = env.run(t, "preference", "get")
	if strings.TrimSpace(out) != "low_sodium" {
		t.Fatalf("expected low_sodium, got %q", out)
	}

	if _, err := env.run(t, "preference", "set", "vegan"); err == nil {
		t.Fatal("expected unknown preference to be rejected")
	}

	list, err := env.run(t, "preference", "list")
	if err != nil {
		t.Fatalf("preference list failed: %v", err)
	}
	requireContains(t, list, "lactose_intolerant")
	requireContains(t, list, "低钠/心血管关注")
}

func TestStatusOnceUnknownAnalysis(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "status", "--once", "missing")
	if err == nil || err.Error() != "analysis missing not found" {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStatusFollowsAnalysis(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "scan", env.imagePath)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	var id string
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Submitted analysis "); ok {
			id = strings.TrimSpace(rest)
		}
	}
	if id == "" {
		t.Fatalf("no analysis id in output:\n%s", out)
	}

	status, err := env.run(t, "status", id)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	requireContains(t, status, "Recognised text: 水,糖,盐")

	retried, err := env.run(t, "retry-ocr", id)
	if err != nil {
		t.Fatalf("retry-ocr failed: %v", err)
	}
	requireContains(t, retried, "ocr_pending")
}

func TestFailuresUseGenericNotices(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database on fire", http.StatusInternalServerError)
	}))
	defer broken.Close()

	env := newCLIEnv(t, t.TempDir(), broken.URL)

	if _, err := env.run(t, "scan", env.imagePath); !errors.Is(err, errUploadFailed) {
		t.Fatalf("expected generic upload notice, got %v", err)
	}
	if _, err := env.run(t, "status", "abc123"); !errors.Is(err, errRecognitionFailed) {
		t.Fatalf("expected generic recognition notice, got %v", err)
	}
}

func TestTokenCommand(t *testing.T) {
	env := newCLIEnv(t, t.TempDir(), "http://127.0.0.1:3000")

	out, err := env.run(t, "token", "--subject", "tester")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(out), "."); len(parts) != 3 {
		t.Fatalf("expected a JWT, got %q", out)
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	dir := t.TempDir()
	env := newCLIEnv(t, dir, "not a url")

	_, err := env.run(t, "preference", "get")
	if err == nil || !strings.Contains(err.Error(), "api_base") {
		t.Fatalf("expected api_base validation error, got %v", err)
	}
}

func TestHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	health := server.NewHealthServer(zap.NewNop())
	go func() { _ = health.Serve(listener) }()
	defer health.Stop()
	health.SetServing(true)

	out, err := env.run(t, "health", "--grpc", listener.Addr().String())
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	requireContains(t, out, " ok")
	requireContains(t, out, "SERVING")
}

func TestScanReportsTimeout(t *testing.T) {
	pending := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"slow-1","status":"ocr_pending"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ocr_pending"}`))
	}))
	defer pending.Close()

	env := newCLIEnv(t, t.TempDir(), pending.URL)
	writeFile(t, env.configPath, strings.Join([]string{
		"api_base: " + pending.URL,
		"log:",
		"  level: error",
		"poll:",
		"  timeout: 100ms",
		"preference:",
		"  store: memory",
	}, "\n"))

	_, err := env.run(t, "scan", env.imagePath)
	if err == nil || err.Error() != "timed out waiting for analysis slow-1" {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
