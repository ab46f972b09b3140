// Package directory is a thin HTTP client for the external accounts service.
// Dispatch only needs rider display info for offer payloads and a captain
// membership check at presence registration.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

func (c *Client) RiderProfile(ctx context.Context, riderID string) (models.RiderProfile, error) {
	var p models.RiderProfile
	u := fmt.Sprintf("%s/internal/riders/%s", c.BaseURL, url.PathEscape(riderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return p, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return p, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p, fmt.Errorf("directory: rider %s lookup status %d", riderID, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return p, err
	}
	return p, nil
}

func (c *Client) CaptainExists(ctx context.Context, captainID string) (bool, error) {
	u := fmt.Sprintf("%s/internal/captains/%s", c.BaseURL, url.PathEscape(captainID))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("directory: captain %s lookup status %d", captainID, resp.StatusCode)
	}
}
