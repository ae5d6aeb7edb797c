// Package browser drives a real Chrome through chromedp to capture the page
// environment the probe collector reads and to run the external engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/shortontech/featurefp/internal/assets"
	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/pkg/config"
	"github.com/shortontech/featurefp/pkg/logger"
)

const (
	defaultWidth   = 1366
	defaultHeight  = 768
	defaultTimeout = 30 * time.Second
)

// Capturer owns one Chrome instance. Each Capture opens a fresh tab.
type Capturer struct {
	opts    []chromedp.ExecAllocatorOption
	timeout time.Duration
	log     logger.Logger

	browserCtx context.Context
	cancel     context.CancelFunc
}

// AllocatorOptions maps the probe configuration onto Chrome flags.
func AllocatorOptions(cfg config.ProbeConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(defaultWidth, defaultHeight),
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

func NewCapturer(cfg config.ProbeConfig, log logger.Logger) *Capturer {
	if log == nil {
		log = logger.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Capturer{opts: AllocatorOptions(cfg), timeout: timeout, log: log}
}

// Start launches Chrome. It must be called before Capture.
func (c *Capturer) Start(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser: failed to start chrome: %w", err)
	}
	c.browserCtx = browserCtx
	c.cancel = func() {
		browserCancel()
		allocCancel()
	}
	return nil
}

func (c *Capturer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Tab opens a new tab in the running browser, bounded by the capture timeout.
func (c *Capturer) Tab() (context.Context, context.CancelFunc, error) {
	if c.browserCtx == nil {
		return nil, nil, errors.New("browser: not started")
	}
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, c.timeout)
	return timeoutCtx, func() {
		timeoutCancel()
		tabCancel()
	}, nil
}

// Capture loads url in tabCtx and evaluates the snapshot script exactly once.
// The result is a static environment the collector can run against offline.
// Presence is recorded for the plan's catalog and for every name in extra.
func (c *Capturer) Capture(tabCtx context.Context, url string, plan probe.Plan, extra ...string) (*probe.Static, error) {
	script, err := assets.RenderSnapshot(plan, extra...)
	if err != nil {
		return nil, err
	}
	var raw []byte
	start := time.Now()
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(script, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("browser: capture %s: %w", url, err)
	}
	env, err := probe.ParseSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot of %s: %w", url, err)
	}
	c.log.Debug("browser: captured",
		logger.F("url", url),
		logger.F("present", len(env.Present)),
		logger.F("dur", time.Since(start).String()))
	return env, nil
}
