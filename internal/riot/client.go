package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	logx "rankbot/pkg/logx"
)

// QueueSoloRanked is the queue type of ranked solo/duo standings.
const QueueSoloRanked = "RANKED_SOLO_5x5"

// ErrNotFound reports that the upstream entity does not exist (HTTP 404).
var ErrNotFound = errors.New("riot: not found")

// APIError is a non-2xx response from the Riot API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("riot %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("riot %s: status %d", e.Endpoint, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Account is the account-v1 payload.
type Account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// LeagueEntry is one league-v4 standing.
type LeagueEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// Observer receives one callback per HTTP exchange. code is 0 on transport errors.
type Observer func(endpoint string, code int, took time.Duration)

type Config struct {
	APIKey          string
	AccountBaseURL  string
	PlatformBaseURL string
	RatePerSec      int
	Burst           int
	Timeout         time.Duration
}

// Client calls the account (regional) and league (platform) APIs. Requests
// share one token bucket so a whole batch stays under the key's rate.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	observe Observer
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithObserver(o Observer) Option       { return func(c *Client) { c.observe = o } }
func WithLogger(l logx.Logger) Option      { return func(c *Client) { c.log = l } }

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AccountByRiotID resolves name#tag to an account.
func (c *Client) AccountByRiotID(ctx context.Context, name, tag string) (Account, error) {
	u := strings.TrimRight(c.cfg.AccountBaseURL, "/") +
		"/riot/account/v1/accounts/by-riot-id/" + url.PathEscape(name) + "/" + url.PathEscape(tag)
	var acc Account
	if err := c.getJSON(ctx, "account.by-riot-id", u, &acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// LeagueEntriesByPUUID lists every queue standing of a player.
func (c *Client) LeagueEntriesByPUUID(ctx context.Context, puuid string) ([]LeagueEntry, error) {
	u := strings.TrimRight(c.cfg.PlatformBaseURL, "/") +
		"/lol/league/v4/entries/by-puuid/" + url.PathEscape(puuid)
	var out []LeagueEntry
	if err := c.getJSON(ctx, "league.by-puuid", u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, u string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("X-Riot-Token", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.note(endpoint, 0, time.Since(start))
		return fmt.Errorf("riot %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.note(endpoint, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("riot %s: read body: %w", endpoint, err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: statusMessage(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.Message = strings.TrimSpace(apiErr.Message + " retry-after=" + retryAfter(resp))
		}
		c.log.Debug("riot request failed", logx.String("endpoint", endpoint), logx.Int("status", resp.StatusCode))
		return apiErr
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("riot %s: decode: %w", endpoint, err)
	}
	return nil
}

func (c *Client) note(endpoint string, code int, took time.Duration) {
	if c.observe != nil {
		c.observe(endpoint, code, took)
	}
}

// maxStatusMessage caps the raw body kept when an error has no JSON message.
const maxStatusMessage = 200

// statusMessage extracts {"status":{"message":...}} from an error body.
func statusMessage(body []byte) string {
	var env struct {
		Status struct {
			Message string `json:"message"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Status.Message != "" {
		return env.Status.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxStatusMessage {
		cut := maxStatusMessage
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

func retryAfter(resp *http.Response) string {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if _, err := strconv.Atoi(v); err != nil {
		return "?"
	}
	return v + "s"
}
