// Package pdf renders HTML documents to PDF using headless Chrome.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrRendererDisabled is returned when PDF conversion is not enabled in the
// service configuration.
var ErrRendererDisabled = errors.New("pdf renderer is disabled")

// Renderer converts an HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// Config controls the headless Chrome renderer.
type Config struct {
	// MaxParallel caps concurrent render tabs. Zero means one at a time.
	MaxParallel int
	// RenderTimeout bounds a single conversion. Zero means 30s.
	RenderTimeout time.Duration
}

// ChromeRenderer renders PDFs in tabs of a shared headless browser process.
type ChromeRenderer struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	sem        chan struct{}
	timeout    time.Duration
	logger     *zap.Logger
}

// NewChromeRenderer starts a headless browser and returns a renderer bound to
// it. Close must be called to shut the browser down.
func NewChromeRenderer(ctx context.Context, cfg Config, logger *zap.Logger) (*ChromeRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	timeout := cfg.RenderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Warm up the browser process so the first render does not pay the
	// startup cost.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}

	cancel := func() {
		browserCancel()
		allocCancel()
	}
	return &ChromeRenderer{
		browserCtx: browserCtx,
		cancel:     cancel,
		sem:        make(chan struct{}, maxParallel),
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Render converts html into a PDF document.
func (r *ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, r.timeout)
	defer timeoutCancel()

	started := time.Now()
	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	r.logger.Debug("rendered pdf",
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(started)),
	)
	return pdf, nil
}

// Close shuts down the browser process.
func (r *ChromeRenderer) Close() {
	if r != nil && r.cancel != nil {
		r.cancel()
	}
}

// Disabled is a Renderer that always reports the feature as off.
type Disabled struct{}

// Render always returns ErrRendererDisabled.
func (Disabled) Render(context.Context, string) ([]byte, error) {
	return nil, ErrRendererDisabled
}
