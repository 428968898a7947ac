package market

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

var (
	dealViewRe  = regexp.MustCompile(`CallItemDealView\((\d+),(\d+),'?([^,')]*)'?,(\d+)\)`)
	refineRe    = regexp.MustCompile(`\+(\d+)`)
	gradeRe     = regexp.MustCompile(`\[([SABCD])\]`)
	cardsRe     = regexp.MustCompile(`\[([^\]]+)\]|\(([^\)]+)\)`)
	numberRe    = regexp.MustCompile(`[^\d]`)
	totalRe     = regexp.MustCompile(`(?:총|전체)\s*([\d,]+)\s*건`)
	anyDigitsRe = regexp.MustCompile(`\d+`)
)

// ParseDealList parses the itemDealList.asp HTML response into listing rows
// plus the server-reported total listing count (0 if the page does not
// report one).
func ParseDealList(r io.Reader, defaultServerID int) ([]DealItem, int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, 0, perrors.NewParsing("gnjoy", "failed to parse deal list HTML", err)
	}

	table := findDealTable(doc)
	if table == nil {
		return nil, 0, perrors.NewParsing("gnjoy", "deal table not found", nil)
	}

	var items []DealItem
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header row
		}
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		if item := parseDealRow(cells, defaultServerID); item != nil {
			items = append(items, *item)
		}
	})

	return items, parseTotalCount(doc), nil
}

// findDealTable locates the listing table across the markup variants GNJOY
// has shipped over time
func findDealTable(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"table.dealList", "table.tbl_deal", "table#dealList"} {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel.First()
		}
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		header := table.Find("th").Text()
		if strings.Contains(header, "서버") || strings.Contains(header, "아이템") || strings.Contains(header, "가격") {
			found = table
			return false
		}
		return true
	})
	return found
}

// parseDealRow parses one table row.
// Expected columns: server, item (image + onclick with detail params),
// quantity, price, shop name (buy/sale class).
func parseDealRow(cells *goquery.Selection, defaultServerID int) *DealItem {
	serverText := strings.TrimSpace(cells.Eq(0).Text())
	serverID := parseServer(serverText, defaultServerID)

	itemCell := cells.Eq(1)
	itemName, refine, cardSlots := parseItemName(itemCell.Text())
	if itemName == "" {
		return nil
	}

	grade := ""
	if m := gradeRe.FindStringSubmatch(itemName); m != nil {
		grade = m[1]
		itemName = strings.TrimSpace(gradeRe.ReplaceAllString(itemName, ""))
	}

	itemID, mapID, mapName, uniqueID := parseDetailParams(itemCell)

	quantity := int(parseNumber(cells.Eq(2).Text()))

	priceCell := cells.Eq(3)
	price := parseNumber(priceCell.Text())
	priceFormatted := strings.TrimSpace(priceCell.Text())
	if priceFormatted == "" || priceFormatted == "0" {
		priceFormatted = FormatPrice(price)
	}

	// Comparison statistics ride on the price cell when GNJOY has them
	yesterdayAvg := parseAttrNumber(priceCell, "data-yesterday-avg")
	weekAvg := parseAttrNumber(priceCell, "data-week-avg")

	shopCell := cells.Eq(4)
	shopName := strings.TrimSpace(shopCell.Text())
	dealType := ""
	if shopCell.HasClass("buy") {
		dealType = "buy"
	} else if shopCell.HasClass("sale") {
		dealType = "sale"
	}

	return &DealItem{
		ServerID:       NormalizeServerID(serverID),
		ServerName:     ServerName(serverID),
		ItemID:         itemID,
		ItemName:       itemName,
		Refine:         refine,
		Grade:          grade,
		CardSlots:      cardSlots,
		Quantity:       quantity,
		Price:          price,
		PriceFormatted: priceFormatted,
		DealType:       dealType,
		ShopName:       shopName,
		MapName:        mapName,
		MapID:          mapID,
		UniqueID:       uniqueID,
		YesterdayAvg:   yesterdayAvg,
		WeekAvg:        weekAvg,
		CrawledAt:      time.Now(),
	}
}

// parseDetailParams extracts CallItemDealView(server, item, map, unique)
// arguments from the item cell's onclick handler
func parseDetailParams(cell *goquery.Selection) (itemID, mapID int, mapName string, uniqueID int) {
	onclick, exists := cell.Find("a[onclick]").Attr("onclick")
	if !exists {
		return 0, 0, "", 0
	}
	m := dealViewRe.FindStringSubmatch(onclick)
	if m == nil {
		return 0, 0, "", 0
	}
	itemID, _ = strconv.Atoi(m[2])
	if n, err := strconv.Atoi(m[3]); err == nil {
		mapID = n
	} else {
		mapName = m[3]
	}
	uniqueID, _ = strconv.Atoi(m[4])
	return itemID, mapID, mapName, uniqueID
}

// parseServer maps a server name or numeric ID in the cell text to an ID
func parseServer(text string, defaultID int) int {
	for id, name := range serverNames {
		if id == ServerAll {
			continue
		}
		if strings.Contains(text, name) {
			return id
		}
	}
	if m := anyDigitsRe.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return defaultID
}

// parseItemName splits a raw item cell text into name, refine level and
// card-slot annotation. Grade tags are left in place for the caller.
func parseItemName(text string) (name string, refine int, cardSlots string) {
	text = strings.TrimSpace(text)

	if m := refineRe.FindStringSubmatch(text); m != nil {
		refine, _ = strconv.Atoi(m[1])
		text = refineRe.ReplaceAllString(text, "")
	}

	// Grade tags use single uppercase letters; anything longer in brackets
	// is card info
	if m := cardsRe.FindStringSubmatch(text); m != nil {
		candidate := m[1]
		if candidate == "" {
			candidate = m[2]
		}
		if !gradeRe.MatchString("[" + candidate + "]") {
			cardSlots = candidate
			text = cardsRe.ReplaceAllString(text, "")
		}
	}

	return strings.TrimSpace(text), refine, cardSlots
}

// parseTotalCount extracts the total listing count the page reports
func parseTotalCount(doc *goquery.Document) int {
	for _, selector := range []string{"span.total", "p.total", "div.paging_total"} {
		text := doc.Find(selector).Text()
		if text == "" {
			continue
		}
		if n := parseNumber(text); n > 0 {
			return int(n)
		}
	}
	if m := totalRe.FindStringSubmatch(doc.Text()); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return n
		}
	}
	return 0
}

// parseAttrNumber reads a numeric data attribute, 0 when absent
func parseAttrNumber(sel *goquery.Selection, attr string) int64 {
	if v, ok := sel.Attr(attr); ok {
		return parseNumber(v)
	}
	return 0
}

// parseNumber strips commas, zeny units and any other non-digit characters
func parseNumber(text string) int64 {
	clean := numberRe.ReplaceAllString(text, "")
	if clean == "" {
		return 0
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseDetailView parses the itemDealView.asp response into enrichment info
func ParseDetailView(r io.Reader) (*DetailInfo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, perrors.NewParsing("gnjoy", "failed to parse detail view HTML", err)
	}

	info := &DetailInfo{}

	doc.Find("div.itemDetail li.card, ul.cardList li").Each(func(_ int, s *goquery.Selection) {
		card := strings.TrimSpace(s.Text())
		if card == "" {
			return
		}
		if info.CardSlots == "" {
			info.CardSlots = card
		} else {
			info.CardSlots += ", " + card
		}
	})

	doc.Find("div.itemDetail li.option, ul.optionList li").Each(func(_ int, s *goquery.Selection) {
		if opt := strings.TrimSpace(s.Text()); opt != "" {
			info.RandomOptions = append(info.RandomOptions, opt)
		}
	})

	if info.CardSlots == "" && len(info.RandomOptions) == 0 {
		return nil, nil
	}
	return info, nil
}
