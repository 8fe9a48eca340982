package scrape

import "context"

// Browser abstracts the scripted browser the capture session drives. The
// concrete implementation is chromedp; tests substitute a stub.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	ExtractInitialBlob(ctx context.Context) ([]byte, error)
	ScrollToBottom(ctx context.Context) error
	Responses() *ResponseBuffer
	Close() error
}
