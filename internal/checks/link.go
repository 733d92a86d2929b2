package checks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LinkChecker verifies that every external link in the content body
// resolves. Relative and repository-internal references are skipped; those
// belong to the retrieval-mismatch tooling, not HTTP.
type LinkChecker struct {
	client      *http.Client
	ratePerHost rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLinkChecker creates a LinkChecker with the given timeout and per-host
// request rate.
func NewLinkChecker(timeout time.Duration, ratePerHost float64) *LinkChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ratePerHost <= 0 {
		ratePerHost = 5
	}
	return &LinkChecker{
		client:      &http.Client{Timeout: timeout},
		ratePerHost: rate.Limit(ratePerHost),
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (l *LinkChecker) Name() string { return "links" }

func (l *LinkChecker) Check(ctx context.Context, c Content) Result {
	var broken []string
	for _, link := range c.Links {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if err := l.head(ctx, u); err != nil {
			broken = append(broken, fmt.Sprintf("%s: %v", link, err))
		}
	}

	if len(broken) > 0 {
		return Result{Name: l.Name(), Passed: false, Detail: strings.Join(broken, "; ")}
	}
	return Result{Name: l.Name(), Passed: true}
}

func (l *LinkChecker) head(ctx context.Context, u *url.URL) error {
	if err := l.limiter(u.Host).Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (l *LinkChecker) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.ratePerHost, max(int(l.ratePerHost), 1))
		l.limiters[host] = lim
	}
	return lim
}
