package crawl

import (
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
)

// Session is the persisted, resumable unit of one bulk multi-page crawl
// over a fixed category/server. It is saved after every completed page and
// on every terminal outcome, so partial progress is never lost.
type Session struct {
	SearchTerm       string            `json:"search_term"`
	ServerID         int               `json:"server_id"`
	ServerName       string            `json:"server_name"`
	CrawledAt        time.Time         `json:"crawled_at"`
	Items            []market.DealItem `json:"items"`
	TotalItems       int               `json:"total_items"`
	LastCrawledPage  int               `json:"last_crawled_page"`
	TotalServerPages int               `json:"total_server_pages"`
	IsComplete       bool              `json:"is_complete"`
}

// NewSession creates a fresh session for a crawl attempt
func NewSession(term string, serverID int, serverName string) *Session {
	return &Session{
		SearchTerm: term,
		ServerID:   serverID,
		ServerName: serverName,
		CrawledAt:  time.Now(),
	}
}

// Append accumulates one completed page of items.
// Items are expected to be tagged with their source page already.
func (s *Session) Append(items []market.DealItem, page int) {
	s.Items = append(s.Items, items...)
	s.TotalItems = len(s.Items)
	s.LastCrawledPage = page
	s.CrawledAt = time.Now()
}

// NextPage returns the first page a resumed crawl should fetch
func (s *Session) NextPage() int {
	return s.LastCrawledPage + 1
}

// SetTotalCount narrows the open-ended page ceiling to the real last page
// once the server reports its total listing count
func (s *Session) SetTotalCount(totalCount int) {
	if totalCount <= 0 || s.TotalServerPages > 0 {
		return
	}
	s.TotalServerPages = (totalCount + market.DealsPerPage - 1) / market.DealsPerPage
}

// StaleAfter reports whether the session is older than the given bound.
// Advisory only: listings may have changed, but resuming stays allowed.
func (s *Session) StaleAfter(bound time.Duration) bool {
	return time.Since(s.CrawledAt) > bound
}
