// Package hints implements the Hint helper (§4.H): storing narrative
// hints as items via the external gamification HTTP API and
// auto-unlocking them in response to reaction_detected events. The HTTP
// client itself is a bounded-in-flight wrapper over net/http — no
// third-party HTTP client is wired here because this is purely outbound,
// unauthenticated-by-us request/response traffic with a tiny, fixed set
// of endpoints; a router/middleware framework like the teacher's
// httpclient module has nothing to add on the calling side (see
// DESIGN.md).
package hints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yabot/core/internal/apperr"
)

// Effects describes the gamification-side behavior an item unlocks.
type Effects struct {
	Type       string `json:"type"`
	HintID     string `json:"hint_id,omitempty"`
	FragmentID string `json:"fragment_id,omitempty"`
}

// Item is the wire shape POSTed to the gamification API (§6).
type Item struct {
	UserID      string         `json:"user_id"`
	ItemID      string         `json:"item_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Rarity      string         `json:"rarity"`
	Quantity    int            `json:"quantity"`
	Effects     Effects        `json:"effects"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Client is a bounded-in-flight HTTP client for the gamification API,
// following the semaphore-over-net/http idiom the spec calls for instead
// of an unbounded goroutine-per-request fan-out.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	sem        chan struct{}
}

// NewClient constructs a Client capped at maxInFlight concurrent requests.
func NewClient(baseURL string, maxInFlight int, timeout time.Duration) *Client {
	if maxInFlight <= 0 {
		maxInFlight = 10
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		sem:        make(chan struct{}, maxInFlight),
	}
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// UnlockItem POSTs item to /api/v1/gamification/items. A non-2xx response
// or transport failure is reported as apperr.ErrAPIUnavailable — per spec
// this never rolls back the triggering event.
func (c *Client) UnlockItem(ctx context.Context, item Item) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("hints: marshal item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/gamification/items", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hints: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrAPIUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return apperr.Wrap(apperr.ErrAPIUnavailable, fmt.Errorf("unlock item: unexpected status %d", resp.StatusCode))
	}
	return nil
}

// UserItems GETs /api/v1/gamification/users/{id}/items, optionally
// filtered by category and itemType.
func (c *Client) UserItems(ctx context.Context, userID, category, itemType string) ([]Item, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	url := fmt.Sprintf("%s/api/v1/gamification/users/%s/items", c.BaseURL, userID)
	if category != "" || itemType != "" {
		url += "?"
		if category != "" {
			url += "category=" + category
		}
		if itemType != "" {
			if category != "" {
				url += "&"
			}
			url += "type=" + itemType
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("hints: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAPIUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Wrap(apperr.ErrAPIUnavailable, fmt.Errorf("user items: unexpected status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hints: read response: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("hints: decode response: %w", err)
	}
	return items, nil
}
