package market

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

// recordingGate implements Gate and records every attempt/result
type recordingGate struct {
	attempts int
	results  []error
	blocked  error
}

func (g *recordingGate) Attempt() error {
	g.attempts++
	return g.blocked
}

func (g *recordingGate) OnResult(err error) {
	g.results = append(g.results, err)
}

// htmlResponder serves a UTF-8 HTML body with an explicit charset so the
// fetch layer does not guess a legacy encoding
func htmlResponder(body string) httpmock.Responder {
	return httpmock.NewStringResponder(200, body).HeaderSet(
		http.Header{"Content-Type": []string{"text/html; charset=utf-8"}})
}

func jsonResponder(body string) httpmock.Responder {
	return httpmock.NewStringResponder(200, body).HeaderSet(
		http.Header{"Content-Type": []string{"application/json; charset=utf-8"}})
}

func newTestClient(t *testing.T) (*Client, *recordingGate) {
	t.Helper()
	names, err := NewNameCache(64)
	require.NoError(t, err)

	gate := &recordingGate{}
	client := NewClient(ClientConfig{
		DealListEndpoint: "https://ro.example.com/itemDeal/itemDealList.asp",
		DealViewEndpoint: "https://ro.example.com/itemDeal/itemDealView.asp",
		Top5Endpoint:     "https://ro.example.com/itemDeal/itemTop5BestView.asp",
		Timeout:          5 * time.Second,
	}, gate, names)

	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return client, gate
}

func TestFetchListingPage(t *testing.T) {
	client, gate := newTestClient(t)

	httpmock.RegisterResponder("GET", `=~itemDealList\.asp`,
		htmlResponder(dealListHTML))

	items, total, err := client.FetchListingPage(context.Background(), "포션", ServerAll, 1)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 37, total)
	assert.Equal(t, 1, gate.attempts)
	require.Len(t, gate.results, 1)
	assert.NoError(t, gate.results[0])

	// Listing rows with resolvable IDs must feed the name cache
	name, ok := client.ResolveDisplayName(1213)
	assert.True(t, ok)
	assert.Equal(t, "엑스칼리버", name)
}

func TestFetchListingPageBlockedByGate(t *testing.T) {
	client, gate := newTestClient(t)
	gate.blocked = perrors.NewRateLimit("gate", "")

	httpmock.RegisterResponder("GET", `=~itemDealList\.asp`,
		htmlResponder(dealListHTML))

	_, _, err := client.FetchListingPage(context.Background(), "포션", ServerAll, 1)
	assert.True(t, perrors.IsRateLimit(err))

	// No network call may be made while blocked
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestFetchListingPageRateLimitedResponse(t *testing.T) {
	client, gate := newTestClient(t)

	httpmock.RegisterResponder("GET", `=~itemDealList\.asp`,
		httpmock.NewStringResponder(http.StatusTooManyRequests, "").HeaderSet(
			http.Header{"Retry-After": []string{"60"}}))

	_, _, err := client.FetchListingPage(context.Background(), "포션", ServerAll, 1)
	assert.True(t, perrors.IsRateLimit(err))

	// The gate must be told about the rate-limited outcome
	require.Len(t, gate.results, 1)
	assert.True(t, perrors.IsRateLimit(gate.results[0]))
}

func TestFetchItemDetail(t *testing.T) {
	client, _ := newTestClient(t)

	httpmock.RegisterResponder("GET", `=~itemDealView\.asp`,
		htmlResponder(`<ul class="cardList"><li class="card">오크 카드</li></ul>`))

	info, err := client.FetchItemDetail(context.Background(), 129, 7, 42)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "오크 카드", info.CardSlots)
}

const top5JSON = `[
  {"ErrorCode": "0", "ErrorMessage": "", "NowDate": "2026-09-01"},
  {"data": [{"equipment": "W"}, {"rankNumber": 1, "itemID": 1213, "itemName": "엑스칼리버", "itemCnt": 52, "rankState": "-"}]},
  {"data": [{"equipment": "D"}, {"rankNumber": 1, "itemID": 2301, "itemName": "코튼 셔츠", "itemCnt": 31, "rankState": "up"}]},
  {"data": [{"equipment": "C"}]},
  {"data": [{"equipment": "E"}]}
]`

func TestFetchTopItems(t *testing.T) {
	client, _ := newTestClient(t)

	httpmock.RegisterResponder("GET", `=~itemTop5BestView\.asp`,
		jsonResponder(top5JSON))

	result, err := client.FetchTopItems(context.Background())
	require.NoError(t, err)

	require.Len(t, result[CategoryWeapon], 1)
	assert.Equal(t, 1213, result[CategoryWeapon][0].ItemID)
	assert.Equal(t, CategoryWeapon, result[CategoryWeapon][0].Category)
	require.Len(t, result[CategoryDefense], 1)
	assert.Empty(t, result[CategoryConsumable])
	assert.Empty(t, result[CategoryEtc])

	// Top items feed the name cache too
	name, ok := client.ResolveDisplayName(2301)
	assert.True(t, ok)
	assert.Equal(t, "코튼 셔츠", name)
}

func TestFetchTopItemsAPIError(t *testing.T) {
	client, _ := newTestClient(t)

	httpmock.RegisterResponder("GET", `=~itemTop5BestView\.asp`,
		jsonResponder(`[{"ErrorCode": "7", "ErrorMessage": "maintenance"}, {}, {}, {}, {}]`))

	_, err := client.FetchTopItems(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}
