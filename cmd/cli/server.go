package main

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	serverBinary       = "hotsync-server"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// isServerRunning checks if the server is responding to health checks
func isServerRunning() bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// isLocalServer reports whether --server points at this machine
func isLocalServer() bool {
	u, err := url.Parse(serverURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func serverCandidates() []string {
	var paths []string
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), serverBinary))
	}
	if p, err := exec.LookPath(serverBinary); err == nil {
		paths = append(paths, p)
	}
	home := os.Getenv("HOME")
	return append(paths,
		"/usr/local/bin/"+serverBinary,
		filepath.Join(home, "go/bin", serverBinary),
		filepath.Join(home, ".local/bin", serverBinary),
	)
}

// findServerBinary locates the hotsync-server binary
func findServerBinary() (string, error) {
	for _, p := range serverCandidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s binary not found", serverBinary)
}

// startServerBackground starts the server as a detached process. Its output
// goes to hotsync-server.log in the temp dir so startup failures can be read.
func startServerBackground() (string, error) {
	serverPath, err := findServerBinary()
	if err != nil {
		return "", err
	}

	var args []string
	if configFile != "" {
		args = append(args, "-config", configFile)
	}
	cmd := exec.Command(serverPath, args...)

	logPath := filepath.Join(os.TempDir(), serverBinary+".log")
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}
	defer out.Close()
	cmd.Stdout = out
	cmd.Stderr = out

	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start server: %w", err)
	}
	go cmd.Wait()

	return logPath, nil
}

// waitForServerReady polls the server until it's ready or timeout
func waitForServerReady() error {
	deadline := time.Now().Add(serverStartTimeout)
	for time.Now().Before(deadline) {
		if isServerRunning() {
			return nil
		}
		time.Sleep(serverPollInterval)
	}
	return fmt.Errorf("server did not start within %v", serverStartTimeout)
}

// ensureServerRunning checks if server is running, starts it if not.
// Remote servers are never started.
func ensureServerRunning() error {
	if isServerRunning() {
		return nil
	}
	if !isLocalServer() {
		return fmt.Errorf("server %s is not reachable", serverURL)
	}

	fmt.Fprintln(os.Stderr, "Server not running, starting...")

	logPath, err := startServerBackground()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	if err := waitForServerReady(); err != nil {
		return fmt.Errorf("%w (see %s)", err, logPath)
	}

	fmt.Fprintln(os.Stderr, "Server started successfully")
	return nil
}
