// Package probe fetches a site's front page for a quick preview.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// DefaultTimeout bounds a whole capture, body included.
const DefaultTimeout = 20 * time.Second

// maxBody caps how much of a page is read.
const maxBody = 2 << 20

var ErrTimeout = errors.New("page load timed out")

// Snapshot is what a capture learned about a page.
type Snapshot struct {
	URL         string        `json:"url"`
	Status      int           `json:"status"`
	ContentType string        `json:"content_type"`
	Title       string        `json:"title,omitempty"`
	Bytes       int           `json:"bytes"`
	Duration    time.Duration `json:"duration_ns"`
}

// Prober captures pages with its own client.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewProber(logger zerolog.Logger, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger.With().Str("component", "probe").Logger(),
	}
}

type result struct {
	snap Snapshot
	err  error
}

// Capture fetches url and races it against the prober's timeout. When the
// timer wins the request is cancelled and its body closed before Capture
// returns.
func (p *Prober) Capture(ctx context.Context, url string) (Snapshot, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		snap, err := p.fetch(fetchCtx, url)
		done <- result{snap, err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			p.logger.Debug().Err(r.err).Str("url", url).Msg("capture failed")
		}
		return r.snap, r.err
	case <-timer.C:
		cancel()
		<-done
		p.logger.Debug().Str("url", url).Dur("timeout", p.timeout).Msg("capture timed out")
		return Snapshot{URL: url}, fmt.Errorf("capture %s: %w", url, ErrTimeout)
	case <-ctx.Done():
		cancel()
		<-done
		return Snapshot{URL: url}, ctx.Err()
	}
}

func (p *Prober) fetch(ctx context.Context, url string) (Snapshot, error) {
	start := time.Now()
	snap := Snapshot{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snap, fmt.Errorf("capture %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "devhost-probe")

	resp, err := p.client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("capture %s: %w", url, err)
	}
	defer resp.Body.Close()

	snap.Status = resp.StatusCode
	snap.ContentType = resp.Header.Get("Content-Type")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return snap, fmt.Errorf("capture %s: read body: %w", url, err)
	}
	snap.Bytes = len(body)
	if strings.Contains(snap.ContentType, "html") || snap.ContentType == "" {
		snap.Title = Title(string(body))
	}
	snap.Duration = time.Since(start)
	return snap, nil
}

// Title returns the text of the first <title> element, whitespace
// collapsed.
func Title(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) != "title" {
				continue
			}
			if z.Next() != html.TextToken {
				return ""
			}
			return strings.Join(strings.Fields(string(z.Text())), " ")
		}
	}
}
