package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/logger"
)

var (
	ErrNotFound    = errors.New("food not found at source")
	ErrSuperseded  = errors.New("search superseded by a newer request")
	ErrUnsupported = errors.New("food id cannot be resolved from a remote source")
)

// NameSearcher finds foods by free text
type NameSearcher interface {
	SearchByName(ctx context.Context, query string) ([]domain.Food, error)
}

// BarcodeSearcher finds a packaged product by its barcode
type BarcodeSearcher interface {
	SearchByBarcode(ctx context.Context, code string) (*domain.Food, error)
}

// IDLookup fetches one food by the source's native id
type IDLookup interface {
	LookupByID(ctx context.Context, nativeID string) (*domain.Food, error)
}

// StatusError is returned when a source answers with a non-2xx status
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Source, e.StatusCode, e.Body)
}

// Options tunes a source client. Zero values pick the defaults of each source.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Log        *logger.Logger
}

type client struct {
	source  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func newClient(source string, opts Options, defaultLimit rate.Limit, burst int) *client {
	c := &client{
		source:  source,
		http:    opts.HTTPClient,
		limiter: opts.Limiter,
		log:     opts.Log,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(defaultLimit, burst)
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	c.log = c.log.With("source", source)
	return c
}

// getJSON waits for the limiter, performs a GET and decodes the body into out.
// 404 maps to ErrNotFound.
func (c *client) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("Source request", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Source: c.source, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
