package helpers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"slices"
	"time"

	"golang.org/x/net/html/charset"

	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

// HTTP client and header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Safari/605.1.15",
	}

	referers = []string{
		"https://ro.gnjoy.com/",
		"https://www.google.com/",
		"https://www.naver.com/",
	}
)

// NewHTTPClient creates an HTTP client with the given timeout.
// Callers keep their own client so tests can swap its transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// ApplyBrowserHeaders sets randomized browser-like headers on a request
func ApplyBrowserHeaders(req *http.Request) {
	rnd := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))

	req.Header.Set("User-Agent", userAgents[rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("referer", referers[rnd.Intn(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("upgrade-insecure-requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-Fetch-User", "?1")
}

// FetchHTML sends an HTTP GET request with randomized browser headers,
// converts the response body to UTF-8 (if needed), and returns it as an
// io.Reader. A 429/430 response is reported as a typed rate-limit error so
// every caller can distinguish it from ordinary failures; a deadline hit on
// ctx is reported as a typed timeout.
func FetchHTML(ctx context.Context, client *http.Client, url string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	ApplyBrowserHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, perrors.NewTimeout("fetch", client.Timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, perrors.NewCancelled("fetch")
		}
		return nil, perrors.NewNetwork("fetch", fmt.Sprintf("failed to fetch %s", url), err)
	}

	// GNJOY answers abuse with 429, occasionally the non-standard 430
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		resp.Body.Close()
		return nil, perrors.NewRateLimit("fetch", resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, perrors.NewNetwork("fetch", fmt.Sprintf("fetch %s unexpected status code: %d", url, resp.StatusCode), nil)
	}

	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Determine the encoding from Content-Type header and body content
	encoding, name, _ := charset.DetermineEncoding(bodyBytes, resp.Header.Get("Content-Type"))

	// If already UTF-8, return as is
	if name == "utf-8" || name == "UTF-8" {
		return bytes.NewReader(bodyBytes), nil
	}

	// Convert to UTF-8 if necessary
	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return &buf, nil
}
