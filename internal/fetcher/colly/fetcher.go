// Package collyfetcher implements the frontier Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/minasearch/frontier/internal/frontier"
	"github.com/minasearch/frontier/internal/hash/sha256"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher fetches one claimed target per call and classifies the result
// into a frontier outcome. It remembers content digests per URL so
// unchanged pages are reported as such.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	hasher        *sha256.Hasher

	mu      sync.Mutex
	digests map[string]string
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		hasher:        sha256.New(),
		digests:       make(map[string]string),
	}
}

// Fetch executes a single HTTP GET. Network failures and 5xx responses
// come back as transient outcomes, robots refusals and 4xx access
// denials as permanent blocks, and 404/410 as not-found. Only genuine
// infrastructure problems (context cancellation) surface as errors.
func (f *Fetcher) Fetch(ctx context.Context, target frontier.CrawlTarget) (frontier.FetchResult, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		status  int
		body    []byte
		title   string
		links   []string
		httpErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if title == "" {
			title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if link := e.Request.AbsoluteURL(e.Attr("href")); link != "" {
			links = append(links, link)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		httpErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target.URL)
	}()
	select {
	case <-ctx.Done():
		return frontier.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && httpErr == nil {
			httpErr = err
		}
	}

	outcome := f.classify(status, httpErr)
	result := frontier.FetchResult{Outcome: outcome}
	if outcome.Kind == frontier.OutcomeSuccess {
		result.Outcome = frontier.Success(f.changed(target.URL, body))
		result.Title = title
		result.Content = body
		result.Links = links
	}
	return result, nil
}

func (f *Fetcher) classify(status int, err error) frontier.Outcome {
	if err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return frontier.PermanentBlock(frontier.BlockedRobotsTxt)
		}
		switch status {
		case http.StatusNotFound, http.StatusGone:
			return frontier.NotFound()
		case http.StatusUnauthorized, http.StatusForbidden:
			return frontier.PermanentBlock(frontier.BlockedOther)
		}
		return frontier.TransientError(err.Error())
	}
	switch {
	case status >= 200 && status < 300:
		return frontier.Success(false)
	case status == http.StatusNotFound || status == http.StatusGone:
		return frontier.NotFound()
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return frontier.PermanentBlock(frontier.BlockedOther)
	default:
		return frontier.TransientError(fmt.Sprintf("unexpected status %d", status))
	}
}

// changed records the body digest and reports whether it moved since the
// previous fetch of this URL. A first fetch counts as changed.
func (f *Fetcher) changed(url string, body []byte) bool {
	digest, err := f.hasher.Hash(body)
	if err != nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, seen := f.digests[url]
	f.digests[url] = digest
	return !seen || prev != digest
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
