package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/janpfeifer/RedCard/internal/game"
	"k8s.io/klog/v2"
)

// ConstantsPath is where the server publishes the table constants.
const ConstantsPath = "/game/constants"

// FetchConstants loads the table constants from apiURL. Missing fields are
// filled with the defaults.
func FetchConstants(ctx context.Context, client *http.Client, apiURL string) (game.Constants, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	url := strings.TrimRight(apiURL, "/") + ConstantsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return game.Constants{}, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return game.Constants{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return game.Constants{}, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return game.Constants{}, fmt.Errorf("fetching %s: expected JSON, got content type %q", url, resp.Header.Get("Content-Type"))
	}

	var c game.Constants
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return game.Constants{}, fmt.Errorf("failed to decode constants from %s: %w", url, err)
	}
	return c.WithDefaults(), nil
}

// ConstantsOrDefault is FetchConstants falling back to the defaults on any error.
func ConstantsOrDefault(ctx context.Context, client *http.Client, apiURL string) game.Constants {
	if apiURL == "" {
		return game.DefaultConstants()
	}
	c, err := FetchConstants(ctx, client, apiURL)
	if err != nil {
		klog.Warningf("ConstantsOrDefault: using defaults: %v", err)
		return game.DefaultConstants()
	}
	klog.Infof("ConstantsOrDefault: %+v", c)
	return c
}
