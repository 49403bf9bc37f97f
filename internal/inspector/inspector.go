// Package inspector performs the fetch-and-extract step of a page check: one
// HTTP GET against a canonical URL followed by metadata extraction from the
// response body.
package inspector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// maxFieldLength caps every extracted text field, counted in Unicode code
// points. The storage schema uses varchar(255) columns.
const maxFieldLength = 255

// defaultTimeout bounds the round trip when the config leaves it unset.
const defaultTimeout = 10 * time.Second

// ErrFetchFailed marks any failed check. Errors returned by Check match it
// with errors.Is.
var ErrFetchFailed = errors.New("fetch failed")

// FetchError reports a check that could not obtain a usable response, either
// because the transport failed or because the server answered 4xx/5xx.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// CheckResult holds the fields extracted from a successful fetch. Missing
// elements degrade to empty strings.
type CheckResult struct {
	StatusCode  int
	Title       string
	H1          string
	Description string
}

// Config controls fetch behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Inspector fetches pages through a colly collector and extracts metadata
// with goquery. It keeps no state between checks: no retries, no caching.
type Inspector struct {
	cfg  Config
	base *colly.Collector
}

// New builds an Inspector.
func New(cfg Config) *Inspector {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	// Error-range responses are handled here, not inside colly, so the
	// 4xx/5xx boundary stays in one place.
	c.ParseHTTPErrorResponse = true
	return &Inspector{cfg: cfg, base: c}
}

// Check performs a single GET against url and extracts the page metadata.
// Redirects follow the transport default. A transport failure or a status
// code of 400 or above yields a *FetchError; any other response is inspected
// as-is.
func (i *Inspector) Check(ctx context.Context, url string) (CheckResult, error) {
	collector := i.base.Clone()
	if i.cfg.UserAgent != "" {
		collector.UserAgent = i.cfg.UserAgent
	}
	timeout := i.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	var (
		statusCode int
		body       []byte
		fetchErr   error
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return CheckResult{}, &FetchError{URL: url, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return CheckResult{}, &FetchError{URL: url, Err: err}
		}
	}
	if fetchErr != nil {
		return CheckResult{}, &FetchError{URL: url, Err: fetchErr}
	}
	if statusCode >= http.StatusBadRequest {
		return CheckResult{}, &FetchError{URL: url, Err: fmt.Errorf("status %d", statusCode)}
	}

	return extract(statusCode, body), nil
}

// extract pulls the first title, first h1 and the content attribute of the
// first meta[name=description] out of the body. goquery tolerates malformed
// HTML, so missing pieces become empty strings rather than errors.
func extract(statusCode int, body []byte) CheckResult {
	result := CheckResult{StatusCode: statusCode}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return result
	}

	result.Title = truncate(doc.Find("title").First().Text())
	result.H1 = truncate(doc.Find("h1").First().Text())
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		result.Description = truncate(content)
	}
	return result
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxFieldLength {
		return s
	}
	return string(runes[:maxFieldLength])
}
