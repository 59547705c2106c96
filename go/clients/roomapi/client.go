// Package roomapi is the plain HTTP side channel next to the WebSocket
// protocol. It is used only to look a room up by id before joining, e.g. to
// pre-fill the room name on an invite link.
package roomapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
)

// Client performs room lookups against the server's REST surface.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a lookup client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetTimeout overrides the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

type roomResponse struct {
	Room *protocol.RoomPayload `json:"room"`
}

// GetRoom fetches a room by id. A missing room returns (nil, nil); transport
// and decoding problems return an error.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*protocol.RoomPayload, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s", c.baseURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(body))
	}

	var out roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode room response: %w", err)
	}
	return out.Room, nil
}
