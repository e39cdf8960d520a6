package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/planward/planward/internal/planning/domain"
)

// DefaultBaseURL is the OpenWeatherMap current weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client fetches current conditions from the OpenWeatherMap API.
type Client struct {
	baseURL    string
	apiKey     string
	city       string
	httpClient *http.Client
}

// NewClient creates an OpenWeatherMap client for the given city. An empty
// baseURL falls back to the public API.
func NewClient(baseURL, apiKey, city string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		city:       city,
		httpClient: httpClient,
	}
}

type weatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"`
	DT   int64              `json:"dt"`
}

// Current returns the current conditions for the configured city.
func (c *Client) Current(ctx context.Context) (*domain.WeatherConditions, error) {
	if c.apiKey == "" {
		return nil, &domain.AuthError{Source: domain.SourceWeather, Err: fmt.Errorf("api key not configured")}
	}

	query := url.Values{}
	query.Set("q", c.city)
	query.Set("appid", c.apiKey)
	query.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &domain.AuthError{
			Source: domain.SourceWeather,
			Err:    fmt.Errorf("weather api returned status %d", resp.StatusCode),
		}
	default:
		return nil, fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	var body weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	conditions := &domain.WeatherConditions{
		Temperature: body.Main.Temp,
		Humidity:    body.Main.Humidity,
		WindSpeed:   body.Wind.Speed,
		ObservedAt:  time.Unix(body.DT, 0).UTC(),
	}
	if len(body.Weather) > 0 {
		conditions.Condition = body.Weather[0].Description
		conditions.RainProbability = rainProbability(body.Weather[0].Main, body.Rain)
	}

	return conditions, nil
}

// rainProbability derives a coarse rain likelihood from the reported
// condition group and the measured precipitation volume. The current-weather
// endpoint carries no forecast probability, so observed rain stands in.
func rainProbability(group string, rain map[string]float64) float64 {
	switch strings.ToLower(group) {
	case "thunderstorm":
		return 1
	case "rain", "drizzle", "snow":
		if rain["1h"] >= 2.5 {
			return 1
		}
		return 0.7
	case "clouds":
		return 0.2
	default:
		return 0
	}
}
