// Package config holds the client settings: where the server is, and how the
// headless player plays.
//
// Settings are layered: defaults, then an optional YAML file, then REDCARD_*
// environment variables (a .env file is loaded into the environment first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Config of a client.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	ServerURL string `yaml:"server_url"`
	// APIURL serves /game/constants. Empty derives it from ServerURL.
	APIURL string `yaml:"api_url"`

	Name      string `yaml:"name"`
	BetAmount int    `yaml:"bet_amount"`
	// CardIndex to bet on, 1-based. Zero leaves the selection to the auto-bet.
	CardIndex int `yaml:"card_index"`
	// Rounds to play before stopping. Zero plays forever.
	Rounds int `yaml:"rounds"`

	// RevealWindow overrides the server's REVEAL_DELAY when positive.
	RevealWindow time.Duration `yaml:"reveal_window"`
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// Default configuration: a local server.
func Default() Config {
	return Config{
		ServerURL:    "ws://localhost:8080/ws",
		BetAmount:    10,
		RestartDelay: 3 * time.Second,
	}
}

// Load builds the configuration from the defaults, the YAML file at path (if
// not empty) and the environment. envFiles are loaded with godotenv; with
// none given, an optional ./.env is tried.
func Load(path string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env files: %w", err)
		}
		klog.V(1).Info("Load: no .env file found, using the environment")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ServerURL = getEnv("REDCARD_SERVER_URL", cfg.ServerURL)
	cfg.APIURL = getEnv("REDCARD_API_URL", cfg.APIURL)
	cfg.Name = getEnv("REDCARD_NAME", cfg.Name)
	cfg.BetAmount = getEnvAsInt("REDCARD_BET", cfg.BetAmount)
	cfg.CardIndex = getEnvAsInt("REDCARD_CARD", cfg.CardIndex)
	cfg.Rounds = getEnvAsInt("REDCARD_ROUNDS", cfg.Rounds)

	if cfg.APIURL == "" {
		apiURL, err := APIURLFromServer(cfg.ServerURL)
		if err != nil {
			return Config{}, err
		}
		cfg.APIURL = apiURL
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server_url %q: %w", c.ServerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server_url %q must use ws:// or wss://", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server_url %q has no host", c.ServerURL)
	}
	if c.Name != "" && utf8.RuneCountInString(strings.TrimSpace(c.Name)) < 2 {
		return fmt.Errorf("name %q must be at least 2 characters", c.Name)
	}
	if c.BetAmount <= 0 {
		return fmt.Errorf("bet_amount must be positive, got %d", c.BetAmount)
	}
	if c.CardIndex < 0 {
		return fmt.Errorf("card_index must not be negative, got %d", c.CardIndex)
	}
	if c.Rounds < 0 {
		return fmt.Errorf("rounds must not be negative, got %d", c.Rounds)
	}
	if c.RevealWindow < 0 || c.RestartDelay < 0 {
		return errors.New("reveal_window and restart_delay must not be negative")
	}
	return nil
}

// APIURLFromServer maps ws[s]://host/ws to http[s]://host.
func APIURLFromServer(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server_url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		klog.Warningf("getEnvAsInt: ignoring %s=%q, not a number", key, value)
	}
	return defaultValue
}
