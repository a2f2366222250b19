package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	weatherBaseURL = "https://wttr.in"
	// wttr.in echoes the requested location, e.g. "Portland,OR: 0.3mm" for /Portland,OR.
	weatherFormat = "%l: %p"
)

// weatherPattern captures the location before the first comma and the
// precipitation after the colon.
var weatherPattern = regexp.MustCompile(`^\s*([^,:]+),[^:]*:\s*(\S.*?)\s*$`)

// WeatherFetcher reports precipitation for a location as
// "<precipitation> of rain in <location>".
type WeatherFetcher struct {
	httpClient *http.Client
	name       string
	baseURL    string
	location   string
}

// WeatherConfig holds configuration for the weather fetcher.
type WeatherConfig struct {
	Name     string // default: "weather"
	BaseURL  string // default: https://wttr.in
	Location string // "<place>,<region>", e.g. "Portland,OR"
	Timeout  time.Duration
}

// NewWeatherFetcher creates a new weather fetcher.
func NewWeatherFetcher(cfg WeatherConfig) (*WeatherFetcher, error) {
	if cfg.Location == "" {
		return nil, fmt.Errorf("weather location is required")
	}
	if !strings.Contains(cfg.Location, ",") {
		return nil, fmt.Errorf("weather location %q must be qualified with a region, e.g. Portland,OR", cfg.Location)
	}

	name := cfg.Name
	if name == "" {
		name = "weather"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = weatherBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &WeatherFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		name:     name,
		baseURL:  baseURL,
		location: cfg.Location,
	}, nil
}

// Name returns the source name.
func (w *WeatherFetcher) Name() string {
	return w.name
}

// Fetch queries current conditions and formats the precipitation message.
func (w *WeatherFetcher) Fetch(ctx context.Context) Result {
	body, err := w.fetchConditions(ctx)
	if err != nil {
		slog.Info("weather fetch failed", "source", w.name, "location", w.location, "error", err)
		return Result{}
	}

	msg, ok := ParseWeather(body)
	if !ok {
		slog.Info("unrecognized weather response", "source", w.name, "body", body)
		return Result{}
	}
	return Found(msg)
}

func (w *WeatherFetcher) fetchConditions(ctx context.Context) (string, error) {
	u, err := url.Parse(w.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + w.location
	u.RawQuery = "format=" + url.QueryEscape(weatherFormat)

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return "", err
	}
	// wttr.in answers plain text to curl-like agents.
	req.Header.Set("User-Agent", "curl/8")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ParseWeather turns "<location>,<rest>: <precipitation>" into
// "<precipitation> of rain in <location>".
func ParseWeather(body string) (string, bool) {
	m := weatherPattern.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return "", false
	}
	location := strings.TrimSpace(m[1])
	return fmt.Sprintf("%s of rain in %s", m[2], location), true
}
