// Package capture renders the week viewer in headless Chromium and saves
// a PNG snapshot, e.g. for posting the current week to a community page.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	appLog "gameweek/internal/log"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 720
	DefaultTimeout = 30 * time.Second
)

// Options defines one snapshot.
type Options struct {
	// BaseURL is where the viewer is served, e.g. "http://127.0.0.1:8080".
	BaseURL  string
	ServerID string
	// Offset selects a week relative to the current one.
	Offset int

	OutputPath string

	Width   int
	Height  int
	Timeout time.Duration
}

// ViewerURL builds the viewer address for one server week.
func ViewerURL(base, serverID string, offset int) (string, error) {
	if base == "" {
		return "", errors.New("capture: base URL is required")
	}
	if serverID == "" {
		return "", errors.New("capture: server id is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("capture: base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("capture: base URL %q must be absolute", base)
	}
	u.Path = "/"
	q := url.Values{}
	q.Set("server", serverID)
	if offset != 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Snapshot loads the viewer for opts.ServerID, waits until the page marks
// itself ready with data-ready="true" and writes a full-page PNG.
func Snapshot(parentCtx context.Context, opts Options) error {
	target, err := ViewerURL(opts.BaseURL, opts.ServerID, opts.Offset)
	if err != nil {
		return err
	}
	if opts.OutputPath == "" {
		return errors.New("capture: output path is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	appLog.Info("capture start", "url", target, "width", opts.Width, "height", opts.Height)

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(target),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Let the last layout pass paint.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("capture saved", "path", opts.OutputPath, "bytes", len(png))
	return nil
}
