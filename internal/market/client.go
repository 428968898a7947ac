package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/helpers"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

// Gate guards every outbound request. Implemented by internal/ratelimit.
type Gate interface {
	// Attempt rejects without a network call while a lockout is active
	Attempt() error

	// OnResult converts an observed rate-limit error into a lockout and
	// clears a stale lockout on success
	OnResult(err error)
}

// ClientConfig holds the GNJOY endpoints and request timeout
type ClientConfig struct {
	DealListEndpoint string
	DealViewEndpoint string
	Top5Endpoint     string
	Timeout          time.Duration
}

// Client issues requests against the GNJOY item-deal interface.
// Every request goes through the gate.
type Client struct {
	http  *http.Client
	gate  Gate
	cfg   ClientConfig
	names *NameCache
	log   *logger.Logger
}

// NewClient creates a new GNJOY client
func NewClient(cfg ClientConfig, gate Gate, names *NameCache) *Client {
	return &Client{
		http:  helpers.NewHTTPClient(cfg.Timeout),
		gate:  gate,
		cfg:   cfg,
		names: names,
		log:   logger.ForCrawl(),
	}
}

// HTTPClient exposes the underlying client so tests can swap its transport
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// FetchListingPage fetches one page of deal listings for a search term.
// Returns the parsed rows and the server-reported total listing count.
func (c *Client) FetchListingPage(ctx context.Context, term string, serverID, page int) ([]DealItem, int, error) {
	if err := c.gate.Attempt(); err != nil {
		return nil, 0, err
	}

	u := fmt.Sprintf("%s?svrID=%d&itemFullName=%s&itemOrder=regdate&curpage=%d",
		c.cfg.DealListEndpoint, serverID, url.QueryEscape(term), page)

	body, err := helpers.FetchHTML(ctx, c.http, u)
	c.gate.OnResult(err)
	if err != nil {
		return nil, 0, err
	}

	items, totalCount, err := ParseDealList(body, serverID)
	if err != nil {
		return nil, 0, err
	}

	for i := range items {
		c.names.Learn(items[i].ItemID, items[i].ItemName)
	}

	c.log.Debug().
		Str("term", term).
		Int("server_id", serverID).
		Int("page", page).
		Int("items", len(items)).
		Int("total_count", totalCount).
		Msg("Fetched listing page")

	return items, totalCount, nil
}

// FetchItemDetail fetches the detail view for one listing.
// Returns nil when the view carries no enrichment fields.
func (c *Client) FetchItemDetail(ctx context.Context, serverID, mapID, uniqueID int) (*DetailInfo, error) {
	if err := c.gate.Attempt(); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?svrID=%d&mapID=%d&dealUniqNo=%d",
		c.cfg.DealViewEndpoint, serverID, mapID, uniqueID)

	body, err := helpers.FetchHTML(ctx, c.http, u)
	c.gate.OnResult(err)
	if err != nil {
		return nil, err
	}

	return ParseDetailView(body)
}

// top5Payload mirrors the itemTop5BestView.asp array response:
// [0] is a header, [1..4] hold the W/D/C/E category buckets
type top5Entry struct {
	ErrorCode    json.Number       `json:"ErrorCode"`
	ErrorMessage string            `json:"ErrorMessage"`
	NowDate      string            `json:"NowDate"`
	Data         []json.RawMessage `json:"data"`
}

// FetchTopItems fetches the ranked top-5 items per category and feeds the
// name cache. One-off request/response, no scheduling.
func (c *Client) FetchTopItems(ctx context.Context) (map[string][]TopItem, error) {
	if err := c.gate.Attempt(); err != nil {
		return nil, err
	}

	body, err := helpers.FetchHTML(ctx, c.http, c.cfg.Top5Endpoint)
	c.gate.OnResult(err)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, perrors.NewNetwork("gnjoy", "failed to read top5 response", err)
	}

	var entries []top5Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, perrors.NewParsing("gnjoy", "unexpected top5 response format", err)
	}
	if len(entries) < 5 {
		return nil, perrors.NewParsing("gnjoy", "unexpected top5 response format", nil)
	}
	if entries[0].ErrorCode.String() != "0" {
		return nil, perrors.NewParsing("gnjoy", fmt.Sprintf("top5 API error: %s", entries[0].ErrorMessage), nil)
	}

	categories := []string{CategoryWeapon, CategoryDefense, CategoryConsumable, CategoryEtc}
	result := make(map[string][]TopItem, len(categories))
	for i, category := range categories {
		items := parseCategoryItems(entries[i+1].Data, category)
		for _, item := range items {
			c.names.Learn(item.ItemID, item.ItemName)
		}
		result[category] = items
	}

	return result, nil
}

// parseCategoryItems parses one category bucket, skipping its header entry
// (the one carrying an "equipment" key)
func parseCategoryItems(data []json.RawMessage, category string) []TopItem {
	var items []TopItem
	for _, raw := range data {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if _, isHeader := probe["equipment"]; isHeader {
			continue
		}
		var item TopItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		item.Category = category
		items = append(items, item)
	}
	return items
}

// ResolveDisplayName returns the known display name for an item ID
func (c *Client) ResolveDisplayName(itemID int) (string, bool) {
	return c.names.Resolve(itemID)
}
