package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apierr "github.com/Brownie44l1/farm-api/internal/errors"
)

const (
	DefaultWeatherURL     = "https://api.open-meteo.com/v1/forecast"
	DefaultWeatherTimeout = 10 * time.Second
)

// Weather is the subset of a forecast the crop model is trained on. Field
// names follow the NASA POWER parameters of the training data.
type Weather struct {
	T2MMax      float64 `json:"T2M_MAX"`
	T2MMin      float64 `json:"T2M_MIN"`
	RH2M        float64 `json:"RH2M"`
	PrecTotCorr float64 `json:"PRECTOTCORR"`
	WS2M        float64 `json:"WS2M"`
}

type WeatherClient struct {
	httpClient  *http.Client
	forecastURL string
}

func NewWeatherClient(forecastURL string, timeout time.Duration) *WeatherClient {
	if forecastURL == "" {
		forecastURL = DefaultWeatherURL
	}
	if timeout <= 0 {
		timeout = DefaultWeatherTimeout
	}
	return &WeatherClient{
		httpClient:  &http.Client{Timeout: timeout},
		forecastURL: forecastURL,
	}
}

// Fetch returns today's max/min temperature and the current humidity,
// precipitation and wind speed at lat/lon. Any failure is an upstream error.
func (c *WeatherClient) Fetch(ctx context.Context, lat, lon float64) (Weather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.forecastURL+"?"+q.Encode(), nil)
	if err != nil {
		return Weather{}, apierr.NewUpstreamError("weather", err)
	}

	var resp struct {
		Current struct {
			RelativeHumidity2M *float64 `json:"relative_humidity_2m"`
			Precipitation      *float64 `json:"precipitation"`
			WindSpeed10M       *float64 `json:"wind_speed_10m"`
		} `json:"current"`
		Daily struct {
			Temperature2MMax []float64 `json:"temperature_2m_max"`
			Temperature2MMin []float64 `json:"temperature_2m_min"`
		} `json:"daily"`
	}
	if err := doJSON(c.httpClient, req, &resp); err != nil {
		return Weather{}, apierr.NewUpstreamError("weather", err)
	}

	if len(resp.Daily.Temperature2MMax) == 0 || len(resp.Daily.Temperature2MMin) == 0 ||
		resp.Current.RelativeHumidity2M == nil || resp.Current.Precipitation == nil || resp.Current.WindSpeed10M == nil {
		return Weather{}, apierr.NewUpstreamError("weather", fmt.Errorf("forecast response is missing fields"))
	}
	return Weather{
		T2MMax:      resp.Daily.Temperature2MMax[0],
		T2MMin:      resp.Daily.Temperature2MMin[0],
		RH2M:        *resp.Current.RelativeHumidity2M,
		PrecTotCorr: *resp.Current.Precipitation,
		WS2M:        *resp.Current.WindSpeed10M,
	}, nil
}

// doJSON performs an HTTP request and decodes a successful JSON response body.
func doJSON(client *http.Client, req *http.Request, dst any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upstream returned status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
