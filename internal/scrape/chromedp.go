package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

const (
	friendlyNameHeader     = "x-fb-friendly-name"
	paginationFriendlyName = "AdLibrarySearchPaginationQuery"
)

// Script tag lookup mirrors the embedded blob the portal renders into the
// initial page.
const initialBlobJS = `(() => {
	const script = Array.from(document.querySelectorAll('script'))
		.find(s => s.textContent.includes('ad_archive_id'));
	return script ? script.textContent : "";
})()`

var errInitialBlobMissing = errors.New("initial result blob not found in page")

// ChromeBrowser drives a headless Chrome via chromedp and buffers the bodies
// of paginated search responses identified by their friendly-name header.
type ChromeBrowser struct {
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	buffer      *ResponseBuffer
	logg        *logger.Logger

	mu      sync.Mutex
	pending map[network.RequestID]bool
}

// NewChromeBrowser launches a browser instance and installs the network
// listener. Close must be called to release the process.
func NewChromeBrowser(ctx context.Context, cfg config.ScrapeConfig, logg *logger.Logger) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	b := &ChromeBrowser{
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		buffer:      NewResponseBuffer(0),
		logg:        logg,
		pending:     map[network.RequestID]bool{},
	}

	if err := chromedp.Run(taskCtx, network.Enable()); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	b.listen()
	return b, nil
}

func (b *ChromeBrowser) listen() {
	chromedp.ListenTarget(b.taskCtx, func(ev any) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			if !strings.Contains(ev.Request.URL, "graphql") {
				return
			}
			if headerValue(ev.Request.Headers, friendlyNameHeader) != paginationFriendlyName {
				return
			}
			b.mu.Lock()
			b.pending[ev.RequestID] = true
			b.mu.Unlock()
		case *network.EventLoadingFinished:
			b.mu.Lock()
			tracked := b.pending[ev.RequestID]
			delete(b.pending, ev.RequestID)
			b.mu.Unlock()
			if !tracked {
				return
			}
			// Bodies must be fetched outside the listener goroutine.
			go b.captureBody(ev.RequestID)
		}
	})
}

func (b *ChromeBrowser) captureBody(id network.RequestID) {
	c := chromedp.FromContext(b.taskCtx)
	if c == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(b.taskCtx, c.Target))
	if err != nil {
		if b.logg != nil {
			b.logg.Warn(b.taskCtx, "failed to read paginated response body")
		}
		return
	}
	if !b.buffer.Push(body) && b.logg != nil {
		b.logg.Warn(b.taskCtx, "response buffer full, payload dropped")
	}
}

func headerValue(headers network.Headers, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			if s, ok := value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// run executes actions on the browser context while honoring the caller's
// cancellation.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(b.taskCtx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *ChromeBrowser) Reload(ctx context.Context) error {
	return b.run(ctx, chromedp.Reload())
}

func (b *ChromeBrowser) ExtractInitialBlob(ctx context.Context) ([]byte, error) {
	var blob string
	if err := b.run(ctx, chromedp.Evaluate(initialBlobJS, &blob)); err != nil {
		return nil, fmt.Errorf("evaluating initial blob: %w", err)
	}
	if strings.TrimSpace(blob) == "" {
		return nil, errInitialBlobMissing
	}
	return []byte(blob), nil
}

func (b *ChromeBrowser) ScrollToBottom(ctx context.Context) error {
	return b.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (b *ChromeBrowser) Responses() *ResponseBuffer {
	return b.buffer
}

func (b *ChromeBrowser) Close() error {
	b.taskCancel()
	b.allocCancel()
	return nil
}
