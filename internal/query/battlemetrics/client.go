// Package battlemetrics reads server state from the BattleMetrics public API.
// It is the fallback Source for servers whose query port is unreachable.
package battlemetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dayzmon/internal/monitor"
)

const DefaultBaseURL = "https://api.battlemetrics.com"

// maxBody caps a server document; real ones are a few KB.
const maxBody = 1 << 20

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	server  string

	mu   sync.Mutex
	etag string
	last []byte // body of the last 200, replayed on 304
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithBaseURL points the client at another API root (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func NewClient(serverID, token string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: DefaultBaseURL,
		token:   token,
		server:  serverID,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type serverDoc struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Name       string `json:"name"`
			Status     string `json:"status"`
			Players    uint32 `json:"players"`
			MaxPlayers uint32 `json:"maxPlayers"`
			Details    struct {
				Map  string  `json:"map"`
				Time *string `json:"time"`
			} `json:"details"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Client) Name() string { return "battlemetrics" }

// Query fetches the server document. The in-game clock is exposed as the
// keyword blob so monitor.Extract handles both sources alike; a document
// without details.time yields nil keywords.
func (c *Client) Query(ctx context.Context) (monitor.RawStatus, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return monitor.RawStatus{}, err
	}

	var doc serverDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return monitor.RawStatus{}, fmt.Errorf("%w: decode server %s: %w", monitor.ErrProtocol, c.server, err)
	}
	a := doc.Data.Attributes
	if st := strings.ToLower(a.Status); st != "" && st != "online" {
		return monitor.RawStatus{}, fmt.Errorf("%w: battlemetrics reports server %s as %s", monitor.ErrNetwork, c.server, a.Status)
	}
	return monitor.RawStatus{
		Name:       a.Name,
		Map:        a.Details.Map,
		Players:    a.Players,
		MaxPlayers: a.MaxPlayers,
		Keywords:   a.Details.Time,
	}, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	u := c.baseURL + "/servers/" + url.PathEscape(c.server)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", monitor.ErrProtocol, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.mu.Lock()
	etag, last := c.etag, c.last
	c.mu.Unlock()
	if etag != "" && last != nil {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", monitor.ErrNetwork, u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && last != nil:
		return last, nil
	case resp.StatusCode/100 != 2:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, fmt.Errorf("%w: GET %s: status %d", monitor.ErrNetwork, u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", monitor.ErrNetwork, err)
	}
	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.last = body
	c.mu.Unlock()
	return body, nil
}
