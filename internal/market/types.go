package market

import (
	"fmt"
	"strings"
	"time"
)

// API server IDs. GNJOY uses different IDs internally in its responses.
const (
	ServerAll       = -1
	ServerBaphomet  = 1
	ServerYggdrasil = 2
	ServerDarkLord  = 3
	ServerIfrit     = 4
)

var serverNames = map[int]string{
	ServerAll:       "전체",
	ServerBaphomet:  "바포메트",
	ServerYggdrasil: "이그드라실",
	ServerDarkLord:  "다크로드",
	ServerIfrit:     "이프리트",
	// GNJOY internal IDs
	129: "바포메트",
	229: "이그드라실",
	529: "다크로드",
	729: "이프리트",
}

// gnjoyServerMap maps GNJOY-internal server IDs to API IDs
var gnjoyServerMap = map[int]int{
	129: ServerBaphomet,
	229: ServerYggdrasil,
	529: ServerDarkLord,
	729: ServerIfrit,
}

// ServerName returns the display name for a server ID, internal or API
func ServerName(id int) string {
	if name, ok := serverNames[id]; ok {
		return name
	}
	return fmt.Sprintf("server %d", id)
}

// NormalizeServerID maps a GNJOY-internal server ID to the API ID.
// IDs that are already API IDs pass through unchanged.
func NormalizeServerID(id int) int {
	if api, ok := gnjoyServerMap[id]; ok {
		return api
	}
	return id
}

// gradeRanks orders item grades best-first; ungraded and unknown sort last
var gradeRanks = map[string]int{
	"S": 0,
	"A": 1,
	"B": 2,
	"C": 3,
	"D": 4,
}

// GradeRank returns the sort rank for a grade (S<A<B<C<D<unknown)
func GradeRank(grade string) int {
	if rank, ok := gradeRanks[strings.ToUpper(grade)]; ok {
		return rank
	}
	return len(gradeRanks)
}

// DealsPerPage is the fixed page size of the deal listing
const DealsPerPage = 20

// Item categories from the top-5 endpoint
const (
	CategoryWeapon     = "W"
	CategoryDefense    = "D"
	CategoryConsumable = "C"
	CategoryEtc        = "E"
)

// DealItem is one listing row from the deal search, optionally enriched
// with detail-view fields
type DealItem struct {
	ServerID       int       `json:"server_id"`
	ServerName     string    `json:"server_name"`
	ItemID         int       `json:"item_id,omitempty"`
	ItemName       string    `json:"item_name"`
	Refine         int       `json:"refine,omitempty"`
	Grade          string    `json:"grade,omitempty"`
	CardSlots      string    `json:"card_slots,omitempty"`
	Quantity       int       `json:"quantity"`
	Price          int64     `json:"price"`
	PriceFormatted string    `json:"price_formatted,omitempty"`
	DealType       string    `json:"deal_type,omitempty"`
	ShopName       string    `json:"shop_name"`
	MapName        string    `json:"map_name,omitempty"`
	MapID          int       `json:"map_id,omitempty"`
	UniqueID       int       `json:"unique_id,omitempty"`
	RandomOptions  []string  `json:"random_options,omitempty"`
	YesterdayAvg   int64     `json:"yesterday_avg,omitempty"`
	WeekAvg        int64     `json:"week_avg,omitempty"`
	SourcePage     int       `json:"source_page,omitempty"`
	CrawledAt      time.Time `json:"crawled_at"`
}

// HasDetailParams reports whether the row carries the parameters needed
// for a detail-view request
func (d *DealItem) HasDetailParams() bool {
	return d.MapID > 0 && d.UniqueID > 0
}

// EffectiveIdentity returns the item ID when resolvable, else the raw name
func (d *DealItem) EffectiveIdentity() string {
	if d.ItemID > 0 {
		return fmt.Sprintf("#%d", d.ItemID)
	}
	return d.ItemName
}

// DisplayName composes the human-readable name: [GRADE]+N name [cards]
func (d *DealItem) DisplayName() string {
	var b strings.Builder
	if d.Grade != "" {
		fmt.Fprintf(&b, "[%s]", d.Grade)
	}
	if d.Refine > 0 {
		fmt.Fprintf(&b, "+%d", d.Refine)
	}
	b.WriteString(d.ItemName)
	if d.CardSlots != "" {
		fmt.Fprintf(&b, "[%s]", d.CardSlots)
	}
	return b.String()
}

// FormatPrice returns the price with thousands separators
func FormatPrice(price int64) string {
	s := fmt.Sprintf("%d", price)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}

// DetailInfo carries the enrichment fields from the detail view
type DetailInfo struct {
	CardSlots     string   `json:"card_slots,omitempty"`
	RandomOptions []string `json:"random_options,omitempty"`
}

// TopItem is one entry from the ranked top-5 listing
type TopItem struct {
	RankNumber int    `json:"rankNumber"`
	ItemID     int    `json:"itemID"`
	ItemName   string `json:"itemName"`
	ItemCount  int    `json:"itemCnt"`
	RankState  string `json:"rankState"`
	Category   string `json:"category,omitempty"`
}
