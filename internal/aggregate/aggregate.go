package aggregate

import (
	"sort"

	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
)

// Status classifies a group's minimum price against the watch price and
// the item's price history
type Status string

const (
	// StatusBargain means the minimum price is at or below the watch price
	StatusBargain Status = "bargain"
	// StatusCheap means the minimum price is below both averages
	StatusCheap Status = "cheap"
	// StatusGood means the minimum price is below exactly one average
	StatusGood Status = "good"
	// StatusNormal means no favorable comparison applies
	StatusNormal Status = "normal"
)

// Group is one display row: all offers of the same item variant on the
// same server collapsed together
type Group struct {
	Identity     string `json:"identity"`
	ItemName     string `json:"item_name"`
	DisplayName  string `json:"display_name"`
	Refine       int    `json:"refine"`
	Grade        string `json:"grade,omitempty"`
	ServerName   string `json:"server_name"`
	Count        int    `json:"count"`
	MinPrice     int64  `json:"min_price"`
	YesterdayAvg int64  `json:"yesterday_avg,omitempty"`
	WeekAvg      int64  `json:"week_avg,omitempty"`
	Status       Status `json:"status"`
}

// ResolveFunc maps a numeric item ID to a known display name.
// Satisfied by market.NameCache.Resolve.
type ResolveFunc func(itemID int) (string, bool)

// Aggregator collapses raw listing rows into display groups
type Aggregator struct {
	resolve ResolveFunc
}

// NewAggregator creates an aggregator. resolve may be nil; raw names are
// used as-is then.
func NewAggregator(resolve ResolveFunc) *Aggregator {
	return &Aggregator{resolve: resolve}
}

type groupKey struct {
	identity   string
	refine     int
	grade      string
	serverName string
}

// Build groups items by (identity, refine, grade, server), computes the
// per-group minimum price and count, and classifies each group against
// the watch price. watchPrice <= 0 means no threshold is configured.
//
// Grade tags make the published price history unreliable, so graded
// groups are classified only against the watch price.
func (a *Aggregator) Build(items []market.DealItem, watchPrice int64) []Group {
	byKey := make(map[groupKey]*Group)
	var order []groupKey

	for i := range items {
		item := &items[i]
		key := groupKey{
			identity:   item.EffectiveIdentity(),
			refine:     item.Refine,
			grade:      item.Grade,
			serverName: item.ServerName,
		}

		group, ok := byKey[key]
		if !ok {
			group = &Group{
				Identity:    key.identity,
				ItemName:    a.baseName(item),
				DisplayName: a.displayName(item),
				Refine:      item.Refine,
				Grade:       item.Grade,
				ServerName:  item.ServerName,
				MinPrice:    item.Price,
			}
			byKey[key] = group
			order = append(order, key)
		}

		group.Count++
		if item.Price < group.MinPrice {
			group.MinPrice = item.Price
		}
		if group.YesterdayAvg == 0 && item.YesterdayAvg > 0 {
			group.YesterdayAvg = item.YesterdayAvg
		}
		if group.WeekAvg == 0 && item.WeekAvg > 0 {
			group.WeekAvg = item.WeekAvg
		}
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		group := byKey[key]
		group.Status = classify(group, watchPrice)
		groups = append(groups, *group)
	}

	// Sort on the base name so refine/grade prefixes in the display name
	// do not distort ordering
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.ItemName != b.ItemName {
			return a.ItemName < b.ItemName
		}
		if a.Refine != b.Refine {
			return a.Refine < b.Refine
		}
		if ra, rb := market.GradeRank(a.Grade), market.GradeRank(b.Grade); ra != rb {
			return ra < rb
		}
		return a.MinPrice < b.MinPrice
	})

	return groups
}

// baseName prefers the resolved canonical name over the raw listing name
func (a *Aggregator) baseName(item *market.DealItem) string {
	if a.resolve != nil && item.ItemID > 0 {
		if name, ok := a.resolve(item.ItemID); ok {
			return name
		}
	}
	return item.ItemName
}

// displayName composes the refine/grade/card prefix around the base name
func (a *Aggregator) displayName(item *market.DealItem) string {
	resolved := *item
	resolved.ItemName = a.baseName(item)
	return resolved.DisplayName()
}

// classify applies the status precedence: bargain wins over everything;
// the average-based statuses apply only to ungraded items
func classify(g *Group, watchPrice int64) Status {
	if watchPrice > 0 && g.MinPrice <= watchPrice {
		return StatusBargain
	}
	if g.Grade != "" {
		return StatusNormal
	}

	belowYesterday := g.YesterdayAvg > 0 && g.MinPrice < g.YesterdayAvg
	belowWeek := g.WeekAvg > 0 && g.MinPrice < g.WeekAvg
	switch {
	case belowYesterday && belowWeek:
		return StatusCheap
	case belowYesterday || belowWeek:
		return StatusGood
	default:
		return StatusNormal
	}
}
