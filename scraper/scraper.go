// Package scraper fetches and parses platinmods.com pages. One Session is
// one browser-like transport session: it keeps cookies between fetches and
// rotates plausible request headers per attempt.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"platinmods-notifier/pkg/notifier"
)

// userAgents is rotated per attempt so consecutive requests don't share a
// single fingerprint.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
}

// blockingStatus reports whether the site answered with a status it uses to
// throttle or block scrapers.
func blockingStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// Session is one continuing transport session against the site. The
// scheduled loop holds one for its whole lifetime; a manual check creates
// its own so the two never share cookie state.
type Session struct {
	client   *http.Client
	policy   Policy
	origin   *url.URL
	segments []string
	logger   *slog.Logger
}

// New creates a session with a fresh cookie jar. origin resolves relative
// thread links; segments is the thread-link accept rule.
func New(policy Policy, origin string, segments []string, logger *slog.Logger) (*Session, error) {
	o, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse site origin: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{
		client:   &http.Client{Timeout: policy.Timeout, Jar: jar},
		policy:   policy,
		origin:   o,
		segments: segments,
		logger:   logger,
	}, nil
}

// resetCookies discards the session cookies, dropping whatever server-side
// fingerprint they carried.
func (s *Session) resetCookies() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		// cookiejar.New with nil options cannot fail today; tolerate anyway.
		s.logger.Warn("Failed to create cookie jar", "error", err)
		return
	}
	s.client.Jar = jar
}

// Presence fetches a member profile and reports whether the member shows as
// online. An error means unknown, never offline.
func (s *Session) Presence(ctx context.Context, pageURL string) (bool, error) {
	doc, err := s.Fetch(ctx, pageURL)
	if err != nil {
		return false, err
	}
	return ExtractPresence(doc), nil
}

// Threads fetches a forum listing page and returns its thread records in
// first-seen order. An error means unknown, never an empty forum.
func (s *Session) Threads(ctx context.Context, pageURL string) ([]notifier.ThreadRecord, error) {
	doc, err := s.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ExtractThreads(doc, s.origin, s.segments), nil
}

// Fetch gets one page with the session's retry policy and returns the
// parsed document. The body is read while the connection is held; parsing
// happens after the transport work is done so a slow parse never pins a
// connection or delays a retry decision.
func (s *Session) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var body []byte

	err := retry.Do(
		func() error {
			if d := s.policy.preDelay(); d > 0 {
				t := time.NewTimer(d)
				select {
				case <-ctx.Done():
					t.Stop()
					return retry.Unrecoverable(ctx.Err())
				case <-t.C:
				}
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			s.setHeaders(req)

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", pageURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if blockingStatus(resp.StatusCode) {
				s.logger.Warn("Blocking status from site, discarding session cookies",
					"url", pageURL, "status_code", resp.StatusCode)
				s.resetCookies()
				return &BlockedError{URL: pageURL, StatusCode: resp.StatusCode}
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			if hasDuplicateCookies(resp.Cookies()) {
				s.logger.Warn("Duplicate cookie names in response, clearing jar", "url", pageURL)
				s.resetCookies()
				return errCookieConflict
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response body: %w", err)
			}
			return nil
		},
		retry.Attempts(s.policy.Attempts),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return s.policy.delay(n, err)
		}),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s after retries: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// setHeaders applies a rotating browser identity to the request.
func (s *Session) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", s.origin.String()+"/")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// hasDuplicateCookies detects a corrupt server response setting the same
// cookie name twice, which poisons the jar for every later request.
func hasDuplicateCookies(cookies []*http.Cookie) bool {
	seen := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		if seen[c.Name] {
			return true
		}
		seen[c.Name] = true
	}
	return false
}
