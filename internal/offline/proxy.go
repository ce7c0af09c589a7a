package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	staticCachePrefix = "bailacheck-static-"
	apiCachePrefix    = "bailacheck-api-"

	// API responses older than this are treated as expired and never served
	// from cache.
	apiStaleness = 5 * time.Minute

	messagePath = "/sw/message"
)

// Config drives the proxy; built in cmd from the offline.* config section.
type Config struct {
	Upstream     string
	APIPrefix    string
	BackendHost  string
	CacheVersion string
	ShellRoutes  []string
}

// Proxy sits between the app and the data service. Shell assets are served
// cache-first out of a versioned static cache; API GETs are network-first
// with a five-minute stale fallback; mutations pass through uncached and are
// queued for background sync when the upstream is unreachable.
type Proxy struct {
	cfg      Config
	upstream *url.URL
	httpc    *http.Client
	registry *cacheRegistry
	queue    *ActionQueue
	log      *zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu      sync.RWMutex
	version string
}

func NewProxy(cfg Config, queue *ActionQueue, log *zerolog.Logger) (*Proxy, error) {
	u, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url must be absolute: %q", cfg.Upstream)
	}

	p := &Proxy{
		cfg:      cfg,
		upstream: u,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		registry: newCacheRegistry(),
		queue:    queue,
		log:      log,
		now:      time.Now,
		version:  cfg.CacheVersion,
	}
	return p, nil
}

func (p *Proxy) staticCache() *responseCache {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.registry.open(staticCachePrefix + p.version)
}

func (p *Proxy) apiCache() *responseCache {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.registry.open(apiCachePrefix + p.version)
}

// Install pre-warms the static cache with the shell routes. A route that
// cannot be fetched is skipped; the proxy still starts.
func (p *Proxy) Install(ctx context.Context) {
	cache := p.staticCache()
	for _, route := range p.cfg.ShellRoutes {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.upstreamURL(route), nil)
		if err != nil {
			continue
		}
		resp, err := p.httpc.Do(req)
		if err != nil {
			p.log.Warn().Err(err).Str("route", route).Msg("shell pre-warm skipped")
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		cache.put(route, &cachedResponse{
			status: resp.StatusCode,
			header: cloneHeader(resp.Header),
			body:   body,
		})
	}
	p.log.Info().Int("cached", cache.len()).Str("version", p.version).Msg("shell pre-warmed")
}

// Activate drops every cache from older versions.
func (p *Proxy) Activate() {
	p.mu.RLock()
	keepStatic := staticCachePrefix + p.version
	keepAPI := apiCachePrefix + p.version
	p.mu.RUnlock()

	dropped := p.registry.purgeExcept(keepStatic, keepAPI)
	for _, name := range dropped {
		p.log.Info().Str("cache", name).Msg("stale cache version purged")
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && r.URL.Path == messagePath {
		p.handleMessage(w, r)
		return
	}
	if p.isAPIRequest(r) {
		p.handleAPI(w, r)
		return
	}
	p.handleStatic(w, r)
}

// isAPIRequest matches the routing rule: API path prefix, or a host equal to
// the configured backend host.
func (p *Proxy) isAPIRequest(r *http.Request) bool {
	if p.cfg.APIPrefix != "" && strings.HasPrefix(r.URL.Path, p.cfg.APIPrefix) {
		return true
	}
	return p.cfg.BackendHost != "" && r.Host == p.cfg.BackendHost
}

// handleStatic is cache-first: a hit is served without touching the network,
// a miss is fetched and stored. When the upstream is down, navigations fall
// back to the offline page.
func (p *Proxy) handleStatic(w http.ResponseWriter, r *http.Request) {
	cache := p.staticCache()
	key := r.URL.Path

	if cached, ok := cache.match(key); ok {
		writeCached(w, cached)
		return
	}

	resp, body, err := p.forward(r)
	if err != nil {
		if isNavigation(r) {
			if fallback, ok := cache.match("/offline"); ok {
				writeCached(w, fallback)
				return
			}
		}
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	if resp.StatusCode == http.StatusOK {
		cache.put(key, &cachedResponse{
			status: resp.StatusCode,
			header: cloneHeader(resp.Header),
			body:   body,
		})
	}
	writeResponse(w, resp, body)
}

// handleAPI is network-first. Successful GETs are stored with a capture
// timestamp; on network failure the cached copy is served only while younger
// than the staleness window. Mutations are never cached: a failed one is
// recorded in the pending-actions queue and the failure reported.
func (p *Proxy) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		p.handleMutation(w, r)
		return
	}

	cache := p.apiCache()
	key := apiKey(r)

	resp, body, err := p.forward(r)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			header := cloneHeader(resp.Header)
			header.Set(CachedAtHeader, strconv.FormatInt(p.now().UnixMilli(), 10))
			cache.put(key, &cachedResponse{status: resp.StatusCode, header: header, body: body})
		}
		writeResponse(w, resp, body)
		return
	}

	cached, ok := cache.match(key)
	if !ok || p.expired(cached) {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	writeCached(w, cached)
}

func (p *Proxy) handleMutation(w http.ResponseWriter, r *http.Request) {
	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, body, err := p.forward(r)
	if err == nil {
		writeResponse(w, resp, body)
		return
	}

	if p.queue != nil {
		id, qerr := p.queue.Enqueue(r.Context(), r.Method, p.upstreamURL(r.URL.RequestURI()), r.Header.Get("X-User-ID"), reqBody)
		if qerr == nil {
			w.Header().Set("X-Queued-Action", id)
		} else {
			p.log.Error().Err(qerr).Msg("failed to queue offline action")
		}
	}
	http.Error(w, "upstream unreachable", http.StatusServiceUnavailable)
}

// expired reports whether a cached API response is past the staleness
// window, judged by its capture timestamp.
func (p *Proxy) expired(c *cachedResponse) bool {
	ms, err := strconv.ParseInt(c.header.Get(CachedAtHeader), 10, 64)
	if err != nil {
		return true
	}
	return p.now().Sub(time.UnixMilli(ms)) > apiStaleness
}

type controlMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// handleMessage processes control messages. SKIP_WAITING swaps to the given
// cache version immediately: fresh caches are opened, old versions purged,
// and the shell re-warmed in the background.
func (p *Proxy) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg controlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "malformed message", http.StatusBadRequest)
		return
	}

	switch msg.Type {
	case "SKIP_WAITING":
		if msg.Version == "" {
			http.Error(w, "version required", http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.version = msg.Version
		p.mu.Unlock()
		p.Activate()
		go p.Install(context.Background())
		p.log.Info().Str("version", msg.Version).Msg("cache version activated")
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unknown message type", http.StatusBadRequest)
	}
}

// Version returns the active cache version.
func (p *Proxy) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// forward replays the request against the upstream. A non-nil error means
// the network failed, not that the upstream answered with an error status.
func (p *Proxy) forward(r *http.Request) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, p.upstreamURL(r.URL.RequestURI()), r.Body)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (p *Proxy) upstreamURL(requestURI string) string {
	return strings.TrimRight(p.upstream.String(), "/") + requestURI
}

// apiKey keys cached API reads per user, so one user's cached reads never
// leak to another.
func apiKey(r *http.Request) string {
	return r.URL.RequestURI() + "|" + r.Header.Get("X-User-ID")
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func writeCached(w http.ResponseWriter, c *cachedResponse) {
	for k, vs := range c.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	w.Write(c.body)
}

func writeResponse(w http.ResponseWriter, resp *http.Response, body []byte) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}
