package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pinpox/gossip/internal/errs"
	"github.com/pinpox/gossip/internal/logging"
)

// Config holds the fetcher's tunables, sourced from internal/config.C.
type Config struct {
	CacheDir      string
	MaxPerHost    int
	LoopPeriod    time.Duration
	LowExclusion  time.Duration
	MedExclusion  time.Duration
	HighExclusion time.Duration
	UserAgent     string
}

// Fetcher is the background HTTP fetch queue. Zero value is not
// usable; construct with New.
type Fetcher struct {
	cfg      Config
	cacheDir string
	client   *http.Client
	gate     *hostGate

	mu   sync.RWMutex
	urls map[string]*urlEntry

	offline      atomic.Bool
	shuttingDown atomic.Bool
}

func New(cfg Config) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		cacheDir: cfg.CacheDir,
		client:   &http.Client{Timeout: 30 * time.Second},
		gate:     newHostGate(max(cfg.MaxPerHost, 1)),
		urls:     make(map[string]*urlEntry),
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// SetOffline flips the "going offline" signal; Tick stops dequeuing
// while true. Requests already in flight are not cancelled by it.
func (f *Fetcher) SetOffline(offline bool) { f.offline.Store(offline) }

// Shutdown marks the fetcher as shutting down; Tick becomes a no-op.
func (f *Fetcher) Shutdown() { f.shuttingDown.Store(true) }

// TryGet implements spec.md section 4.3's synchronous probe.
func (f *Fetcher) TryGet(rawURL string, maxAge time.Duration) (body []byte, ok bool, err error) {
	f.mu.Lock()
	entry, seen := f.urls[rawURL]
	if seen {
		switch entry.state {
		case InFlight, Queued:
			f.mu.Unlock()
			return nil, false, nil
		case Failed:
			failed := entry.failed
			f.mu.Unlock()
			return nil, false, errs.New(errs.HTTPError, failed, "previously failed: %s", rawURL)
		}
	}
	f.mu.Unlock()

	data, age, cached := f.readCache(rawURL)
	if cached && age <= maxAge {
		return data, true, nil
	}

	f.mu.Lock()
	if cached {
		f.urls[rawURL] = &urlEntry{state: QueuedStale}
	} else {
		f.urls[rawURL] = &urlEntry{state: Queued}
	}
	f.mu.Unlock()
	return nil, false, nil
}

// Tick runs one pass of the background loop: launches fetch(url) for
// every Queued/QueuedStale URL whose host isn't penalized and is under
// the concurrency ceiling.
func (f *Fetcher) Tick(ctx context.Context) {
	if f.offline.Load() || f.shuttingDown.Load() {
		return
	}

	f.mu.RLock()
	candidates := make([]string, 0, len(f.urls))
	for rawURL, e := range f.urls {
		if e.state == Queued || e.state == QueuedStale {
			candidates = append(candidates, rawURL)
		}
	}
	f.mu.RUnlock()

	now := time.Now()
	for _, rawURL := range candidates {
		host := hostOf(rawURL)
		if f.gate.penaltyActive(host, now) {
			continue
		}
		if !f.gate.tryAcquire(host) {
			continue
		}
		go func(rawURL, host string) {
			defer f.gate.release(host)
			f.fetch(ctx, rawURL, host)
		}(rawURL, host)
	}
}

func (f *Fetcher) setState(rawURL string, e *urlEntry) {
	f.mu.Lock()
	f.urls[rawURL] = e
	f.mu.Unlock()
}

func (f *Fetcher) clearState(rawURL string) {
	f.mu.Lock()
	delete(f.urls, rawURL)
	f.mu.Unlock()
}

func (f *Fetcher) wasStale(rawURL string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.urls[rawURL]
	return ok && e.state == QueuedStale
}

// fetch performs one GET against url and classifies the outcome per
// spec.md section 4.3.
func (f *Fetcher) fetch(ctx context.Context, rawURL, host string) {
	if err := f.gate.limiterFor(host).Wait(ctx); err != nil {
		return
	}

	wasStale := f.wasStale(rawURL)
	etag := f.readETag(rawURL)
	f.setState(rawURL, &urlEntry{state: InFlight})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.setState(rawURL, &urlEntry{state: Failed, failed: err})
		return
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.classifyNetworkError(rawURL, host, err, wasStale)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		_ = f.touchCacheMtime(rawURL)
		f.clearState(rawURL)

	case resp.StatusCode >= 100 && resp.StatusCode < 200:
		f.gate.penalize(host, f.cfg.LowExclusion)
		f.requeue(rawURL, wasStale)

	case resp.StatusCode == http.StatusRequestTimeout:
		f.gate.penalize(host, f.cfg.LowExclusion)
		f.requeue(rawURL, wasStale)

	case resp.StatusCode == http.StatusTooManyRequests:
		f.gate.penalize(host, f.cfg.MedExclusion)
		f.requeue(rawURL, wasStale)

	case resp.StatusCode >= 500:
		f.gate.penalize(host, f.cfg.HighExclusion)
		f.requeue(rawURL, wasStale)

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		f.fail(rawURL, wasStale, fmt.Errorf("unexpected redirect status %d", resp.StatusCode))

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			f.fail(rawURL, wasStale, readErr)
			return
		}
		if len(body) == 0 {
			f.gate.penalize(host, 10*time.Second)
			f.fail(rawURL, wasStale, errors.New("empty body"))
			return
		}
		if err := f.writeCache(rawURL, body, resp.Header.Get("ETag")); err != nil {
			logging.Warnf("fetch: writing cache for %s: %v", rawURL, err)
		}
		f.clearState(rawURL)

	default:
		f.fail(rawURL, wasStale, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func (f *Fetcher) classifyNetworkError(rawURL, host string, err error, wasStale bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		f.gate.penalize(host, f.cfg.LowExclusion)
		f.requeue(rawURL, wasStale)
		return
	}
	f.fail(rawURL, wasStale, err)
}

func (f *Fetcher) requeue(rawURL string, wasStale bool) {
	state := Queued
	if wasStale {
		state = QueuedStale
	}
	f.setState(rawURL, &urlEntry{state: state})
}

// fail marks the URL Failed. If it was QueuedStale, the old cache file
// is left alone and merely touched so readers don't keep re-queuing
// it (spec.md section 4.3 step 6).
func (f *Fetcher) fail(rawURL string, wasStale bool, err error) {
	if wasStale {
		_ = f.touchCacheMtime(rawURL)
	}
	f.setState(rawURL, &urlEntry{state: Failed, failed: err})
}
