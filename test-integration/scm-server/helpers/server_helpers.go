// Package helpers provides utilities for the scm-server integration tests.
package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	"github.com/scmgo/scm-server/internal/app"
	"github.com/scmgo/scm-server/internal/config"
)

// HookToken is the shared secret written by WriteConfigYAML.
const HookToken = "integration-hook-token"

// ServerTestHelper manages the scm-server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *app.ServerApp
}

// NewServerTestHelper creates a helper serving on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	address := listener.Addr().String()
	gomega.Expect(listener.Close()).To(gomega.Succeed())

	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// StartServer loads the configuration and starts the server in the background
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	server, err := app.NewServerApp(s.ctx, app.WithConfig(cfg), app.WithAddress(s.address))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = server

	go func() {
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits until /health answers 200
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		status, _, err := s.Do(http.MethodGet, "/health", nil, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("server returned status %d", status)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Do sends a request with an optional JSON body and returns status and body
func (s *ServerTestHelper) Do(method, path string, body any, header http.Header) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// MustDo is Do that fails the running test on transport errors
func (s *ServerTestHelper) MustDo(method, path string, body any) (int, []byte) {
	status, data, err := s.Do(method, path, body, nil)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return status, data
}

// WriteConfigYAML writes a file storage configuration rooted at dir that
// grants every action to anonymous callers and requires HookToken on hooks.
// It returns the path of the configuration file.
func WriteConfigYAML(dir string) string {
	tokenFile := filepath.Join(dir, "hook-token")
	gomega.Expect(os.WriteFile(tokenFile, []byte(HookToken+"\n"), 0600)).To(gomega.Succeed())

	content := fmt.Sprintf(`storage:
  type: file
  file:
    baseDir: %s
repositories:
  root: %s
cache:
  defaultCapacity: 100
auth:
  mode: anonymous
  anonymousActions: [read, write, admin]
hooks:
  tokenFile: %s
`, filepath.Join(dir, "data"), RepositoriesRoot(dir), tokenFile)

	configPath := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(configPath, []byte(content), 0600)).To(gomega.Succeed())
	return configPath
}

// RepositoriesRoot is the repository directory used by WriteConfigYAML
func RepositoriesRoot(dir string) string {
	return filepath.Join(dir, "repositories")
}
