package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/domain/auth"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Mirror.WorkDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func site(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>t</title></head><body><img src="/logo.png"></body></html>`)
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "\x89PNG\r\n\x1a\n")
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Delivery = "carrier-pigeon"

	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestNewServerMissingUsersFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.UsersFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestDownloadThroughStack(t *testing.T) {
	for _, delivery := range []string{config.DeliveryBuffered, config.DeliveryStreaming} {
		t.Run(delivery, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Mirror.Policy = config.PolicySelectors
			cfg.Archive.Delivery = delivery
			srv := newTestServer(t, cfg)
			target := site(t)

			body := strings.NewReader(`{"url":"` + target.URL + `"}`)
			req := httptest.NewRequest(http.MethodPost, "/download", body)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", "Mozilla/5.0")
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "attachment; filename=127.zip", w.Header().Get("Content-Disposition"))

			zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
			require.NoError(t, err)

			names := map[string]string{}
			for _, f := range zr.File {
				rc, err := f.Open()
				require.NoError(t, err)
				data, err := io.ReadAll(rc)
				rc.Close()
				require.NoError(t, err)
				names[f.Name] = string(data)
			}
			require.Contains(t, names, "index.html")
			require.Contains(t, names, "logo.png")
			assert.True(t, strings.HasPrefix(names["index.html"], "<html><head>\n<style>"), names["index.html"])

			entries, err := os.ReadDir(cfg.Mirror.WorkDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "work directory is cleaned after the response")
		})
	}
}

func TestAuthEnabled(t *testing.T) {
	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)

	users := filepath.Join(t.TempDir(), "users.yaml")
	content := "users:\n  - username: alice\n    password_hash: \"" + hash + "\"\n"
	require.NoError(t, os.WriteFile(users, []byte(content), 0o600))

	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.UsersFile = users
	cfg.Auth.SessionTTL = time.Hour
	srv := newTestServer(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(`{"url":"https://example.com"}`))
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)
}

func TestRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	// Let ListenAndServe start before shutting it down
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	srv.Close()
}
