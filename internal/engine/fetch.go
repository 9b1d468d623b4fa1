package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher retrieves an engine binary asset by URL. The default fetcher
// is a plain HTTP client; hosts that need file:// assets served from
// local disk install the reversible file transport shim on that client
// rather than mutating any global.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type ClientFetcher struct {
	Client *http.Client
}

func (f ClientFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch engine asset: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch engine asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch engine asset: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch engine asset: read body: %w", err)
	}
	return data, nil
}

// fileServingTransport serves file:// requests from local disk and
// passes every other scheme through to the original transport
// unmodified.
type fileServingTransport struct {
	original http.RoundTripper
	files    http.RoundTripper
}

func (t *fileServingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "file" {
		return t.files.RoundTrip(req)
	}
	original := t.original
	if original == nil {
		original = http.DefaultTransport
	}
	return original.RoundTrip(req)
}

// InstallFileTransport patches the client so file:// requests are served
// from local disk. Installing twice is a no-op.
func InstallFileTransport(client *http.Client) {
	if client == nil {
		return
	}
	if _, ok := client.Transport.(*fileServingTransport); ok {
		return
	}
	client.Transport = &fileServingTransport{
		original: client.Transport,
		files:    http.NewFileTransport(http.Dir("/")),
	}
}

// RestoreFetch undoes InstallFileTransport. Calling it on a client that
// was never patched is a no-op.
func RestoreFetch(client *http.Client) {
	if client == nil {
		return
	}
	if shim, ok := client.Transport.(*fileServingTransport); ok {
		client.Transport = shim.original
	}
}
