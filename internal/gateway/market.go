package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Brownie44l1/farm-api/internal/catalog"
	apierr "github.com/Brownie44l1/farm-api/internal/errors"
)

const (
	// Daily mandi prices of commodities on data.gov.in.
	DefaultMarketURL     = "https://api.data.gov.in/resource/9ef84268-d588-465a-a308-a864a43d0070"
	DefaultMarketTimeout = 20 * time.Second
	DefaultRecordLimit   = 1000
	DefaultRowLimit      = 100
)

// Price is one commodity price row. Price is passed through as the upstream
// sent it.
type Price struct {
	Commodity any `json:"commodity"`
	Market    any `json:"market"`
	Price     any `json:"price"`
}

// Record is one raw upstream record.
type Record map[string]any

type MarketOptions struct {
	URL         string        `json:"url,omitempty"`
	APIKey      string        `json:"apiKey,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	RecordLimit int           `json:"recordLimit,omitempty"`
	RowLimit    int           `json:"rowLimit,omitempty"`
}

type MarketClient struct {
	httpClient *http.Client
	opts       MarketOptions
}

func NewMarketClient(opts MarketOptions) *MarketClient {
	if opts.URL == "" {
		opts.URL = DefaultMarketURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultMarketTimeout
	}
	if opts.RecordLimit <= 0 {
		opts.RecordLimit = DefaultRecordLimit
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	return &MarketClient{httpClient: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

// Records fetches the most recent records by arrival date, unfiltered.
func (c *MarketClient) Records(ctx context.Context) ([]Record, error) {
	if c.opts.APIKey == "" {
		return nil, fmt.Errorf("no market API key configured")
	}
	q := url.Values{}
	q.Set("api-key", c.opts.APIKey)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(c.opts.RecordLimit))
	q.Set("sort[arrival_date]", "desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Records []Record `json:"records"`
	}
	if err := doJSON(c.httpClient, req, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Fetch returns up to RowLimit price rows for state from the latest records.
// The state name is mapped to the upstream spelling and matched exactly.
func (c *MarketClient) Fetch(ctx context.Context, state string) ([]Price, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, apierr.NewUpstreamError("market", err)
	}
	apiState := catalog.MarketState(state)
	prices := []Price{}
	for _, rec := range records {
		if s, _ := rec["state"].(string); s != apiState {
			continue
		}
		prices = append(prices, Price{
			Commodity: rec["commodity"],
			Market:    rec["market"],
			Price:     rec["modal_price"],
		})
		if len(prices) == c.opts.RowLimit {
			break
		}
	}
	return prices, nil
}
