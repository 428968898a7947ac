package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
)

func deal(name string, refine int, grade string, server string, price int64) market.DealItem {
	return market.DealItem{
		ItemName:   name,
		Refine:     refine,
		Grade:      grade,
		ServerName: server,
		Price:      price,
		Quantity:   1,
	}
}

func TestAggregatorCollapsesIdenticalVariants(t *testing.T) {
	// Same (identity, refine, grade, server), different shop/quantity
	a := deal("엑스칼리버", 7, "A", "바포메트", 150000)
	a.ShopName = "무기상점"
	b := deal("엑스칼리버", 7, "A", "바포메트", 120000)
	b.ShopName = "떨이상점"
	b.Quantity = 3

	groups := NewAggregator(nil).Build([]market.DealItem{a, b}, 0)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, int64(120000), groups[0].MinPrice)
}

func TestAggregatorSeparatesDifferentVariants(t *testing.T) {
	items := []market.DealItem{
		deal("엑스칼리버", 7, "A", "바포메트", 150000),
		deal("엑스칼리버", 8, "A", "바포메트", 150000), // refine differs
		deal("엑스칼리버", 7, "B", "바포메트", 150000), // grade differs
		deal("엑스칼리버", 7, "A", "이그드라실", 150000), // server differs
	}
	groups := NewAggregator(nil).Build(items, 0)
	assert.Len(t, groups, 4)
}

func TestAggregatorBargainBeatsGradedNormal(t *testing.T) {
	// Graded items normally skip price-history comparison, but a watch
	// price hit still classifies them as bargain
	item := deal("엑스칼리버", 0, "A", "바포메트", 900)
	groups := NewAggregator(nil).Build([]market.DealItem{item}, 1000)
	require.Len(t, groups, 1)
	assert.Equal(t, StatusBargain, groups[0].Status)
}

func TestAggregatorGradedSkipsAverages(t *testing.T) {
	item := deal("엑스칼리버", 0, "S", "바포메트", 500)
	item.YesterdayAvg = 1000
	item.WeekAvg = 1000

	groups := NewAggregator(nil).Build([]market.DealItem{item}, 0)
	require.Len(t, groups, 1)
	assert.Equal(t, StatusNormal, groups[0].Status)
}

func TestAggregatorStatusClassification(t *testing.T) {
	tests := []struct {
		name         string
		price        int64
		yesterdayAvg int64
		weekAvg      int64
		watchPrice   int64
		want         Status
	}{
		{"bargain at threshold", 1000, 0, 0, 1000, StatusBargain},
		{"below both averages", 800, 1000, 1200, 0, StatusCheap},
		{"below one average", 1100, 1000, 1200, 0, StatusGood},
		{"above both averages", 1500, 1000, 1200, 0, StatusNormal},
		{"no averages available", 500, 0, 0, 0, StatusNormal},
		{"bargain wins over cheap", 800, 1000, 1200, 900, StatusBargain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := deal("붉은 포션", 0, "", "전체", tt.price)
			item.YesterdayAvg = tt.yesterdayAvg
			item.WeekAvg = tt.weekAvg

			groups := NewAggregator(nil).Build([]market.DealItem{item}, tt.watchPrice)
			require.Len(t, groups, 1)
			assert.Equal(t, tt.want, groups[0].Status)
		})
	}
}

func TestAggregatorSortOrder(t *testing.T) {
	items := []market.DealItem{
		deal("옷감", 0, "", "전체", 300),
		deal("엑스칼리버", 8, "", "전체", 100),
		deal("엑스칼리버", 7, "B", "전체", 100),
		deal("엑스칼리버", 7, "S", "전체", 100),
		deal("강철", 0, "", "전체", 50),
	}
	groups := NewAggregator(nil).Build(items, 0)
	require.Len(t, groups, 5)

	// Name asc, then refine asc, then grade rank S before B
	assert.Equal(t, "강철", groups[0].DisplayName)
	assert.Equal(t, "[S]+7엑스칼리버", groups[1].DisplayName)
	assert.Equal(t, "[B]+7엑스칼리버", groups[2].DisplayName)
	assert.Equal(t, "+8엑스칼리버", groups[3].DisplayName)
	assert.Equal(t, "옷감", groups[4].DisplayName)
}

func TestAggregatorResolvesDisplayName(t *testing.T) {
	item := deal("?", 0, "", "전체", 100)
	item.ItemID = 501

	resolve := func(itemID int) (string, bool) {
		if itemID == 501 {
			return "붉은 포션", true
		}
		return "", false
	}

	groups := NewAggregator(resolve).Build([]market.DealItem{item}, 0)
	require.Len(t, groups, 1)
	assert.Equal(t, "#501", groups[0].Identity)
	assert.Equal(t, "붉은 포션", groups[0].DisplayName)
}
