package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"inkboard/internal/api"
	"inkboard/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
	serverLogFileName  = "autostart.log"
)

// withClient runs fn against the configured server. A loopback server that
// is not running is started for the duration of the call.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	cleanup, err := ensureServer(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	return fn(api.NewClient(cfg.APIURL))
}

func ensureServer(cfg *config.Config) (func(), error) {
	client := api.NewClient(cfg.APIURL)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := client.Ping(ctx); err == nil {
		return nil, nil
	} else if !isLoopbackURL(cfg.APIURL) {
		return nil, err
	}

	cmd, err := startServerProcess(cfg)
	if err != nil {
		return nil, err
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), serverStartTimeout)
	defer waitCancel()
	if err := waitForServer(waitCtx, client); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	cleanup := func() {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(serverStartTimeout):
			_ = cmd.Process.Kill()
			<-done
		}
	}
	return cleanup, nil
}

func startServerProcess(cfg *config.Config) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"INKBOARD_DB="+cfg.DBPath,
		"INKBOARD_API_URL="+cfg.APIURL,
		"INKBOARD_ASSETS_DIR="+cfg.AssetsDir,
	)

	logFile, err := openServerLog(cfg)
	if err != nil {
		return nil, err
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, err
	}
	// The child holds its own descriptor.
	_ = logFile.Close()
	return cmd, nil
}

func openServerLog(cfg *config.Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return os.OpenFile(filepath.Join(cfg.DataDir, serverLogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func waitForServer(ctx context.Context, client *api.Client) error {
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		err := client.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isConnRefused(err) {
			// Something else owns the port.
			return err
		}
		select {
		case <-ctx.Done():
			return errors.New("server did not start in time")
		case <-ticker.C:
		}
	}
}

func isConnRefused(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
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
