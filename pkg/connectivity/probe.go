package connectivity

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Probe is a Monitor that polls a URL. Any HTTP response counts as online;
// a transport error counts as offline.
type Probe struct {
	url        string
	interval   time.Duration
	httpClient *http.Client

	mu     sync.Mutex
	online bool
	subs   listeners
}

// NewProbe polls url every interval (DefaultProbeInterval when non-positive).
func NewProbe(url string, interval time.Duration, httpClient *http.Client) (*Probe, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("connectivity: probe url is empty")
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProbeTimeout}
	}
	return &Probe{url: url, interval: interval, httpClient: httpClient}, nil
}

func (p *Probe) Subscribe(fn func(online bool)) func() {
	return p.subs.add(fn)
}

func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Run probes immediately and then on every tick until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("connectivity: context cannot be nil")
	}
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check performs one probe, updates the state and returns it.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()
	if changed {
		log.Info().Str("url", p.url).Bool("online", online).Msg("connectivity: state changed")
		p.subs.notify(online)
	}
	return online
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		log.Error().Err(err).Str("url", p.url).Msg("connectivity: build probe request failed")
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", p.url).Msg("connectivity: probe failed")
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return true
}
