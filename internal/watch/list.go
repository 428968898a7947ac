package watch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/internal/aggregate"
	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
)

// Mutation errors. Limit and duplicate are distinct so callers can offer
// different recovery paths.
var (
	ErrLimitReached = errors.New("watch list is full")
	ErrDuplicate    = errors.New("item is already on the watch list")
	ErrNotFound     = errors.New("item is not on the watch list")
)

// State is the scheduling state of one watch-list item
type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
	StateProcessing State = "processing"
	StateDisabled   State = "disabled"
)

// Item is one watch-list entry. The scheduling fields are runtime-only
// and rebuilt on load. gen counts identity/threshold mutations so an
// in-flight refresh claimed before a mutation can be told apart from one
// claimed after it.
type Item struct {
	Name       string `json:"item_name"`
	ServerID   int    `json:"server_id"`
	ServerName string `json:"server_name"`
	WatchPrice int64  `json:"watch_price,omitempty"`

	State       State     `json:"-"`
	NextRefresh time.Time `json:"-"`
	gen         int
}

// Key is the identity key of the entry
func (i *Item) Key() string {
	return itemKey(i.Name, i.ServerID)
}

func itemKey(name string, serverID int) string {
	return fmt.Sprintf("%s@%d", name, serverID)
}

// Claim is an exclusive handle on one in-flight refresh. It snapshots the
// identity fields at claim time so the worker never touches the live
// entry, and remembers the entry's generation: a mutation mid-flight
// bumps the generation and the outcome of the old claim is dropped.
type Claim struct {
	item *Item
	gen  int

	Name       string
	ServerID   int
	ServerName string
	WatchPrice int64
}

// Key is the identity key the claim was taken under
func (c *Claim) Key() string {
	return itemKey(c.Name, c.ServerID)
}

// Result is the last-known refresh outcome for one item, overwritten on
// each refresh
type Result struct {
	Items        []market.DealItem `json:"items"`
	Groups       []aggregate.Group `json:"groups"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// HasBargain reports whether any group hit the watch price
func (r *Result) HasBargain() bool {
	for _, g := range r.Groups {
		if g.Status == aggregate.StatusBargain {
			return true
		}
	}
	return false
}

// Config is the persisted shape of the watch list
type Config struct {
	Items []Item `json:"items"`
}

// ConfigStore persists the watch-list configuration.
// Implemented by services/storage.
type ConfigStore interface {
	SaveWatchConfig(cfg *Config) error
	LoadWatchConfig() (*Config, error)
}

// List is the bounded watch-list. All item and result access goes through
// its lock; the refresh state machine uses the claim/release methods so
// at most one in-flight operation exists per item.
type List struct {
	mu      sync.Mutex
	items   []*Item
	results map[string]*Result
	max     int
	enabled bool
	store   ConfigStore
	log     *logger.Logger
}

// NewList creates a watch list bounded to max entries. store may be nil
// (tests); mutations then skip persistence.
func NewList(max int, store ConfigStore) *List {
	return &List{
		results: make(map[string]*Result),
		max:     max,
		enabled: true,
		store:   store,
		log:     logger.ForMonitor(),
	}
}

// Load restores the persisted configuration. Loaded items start idle and
// immediately due.
func (l *List) Load() error {
	if l.store == nil {
		return nil
	}
	cfg, err := l.store.LoadWatchConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for i := range cfg.Items {
		item := cfg.Items[i]
		item.State = StateIdle
		item.NextRefresh = now
		l.items = append(l.items, &item)
	}
	l.log.Info().Int("items", len(l.items)).Msg("Watch list loaded")
	return nil
}

// Add appends a new entry, immediately due for refresh
func (l *List) Add(name string, serverID int, serverName string, watchPrice int64) (*Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) >= l.max {
		return nil, ErrLimitReached
	}
	if l.findLocked(name, serverID) != nil {
		return nil, ErrDuplicate
	}

	item := &Item{
		Name:        name,
		ServerID:    serverID,
		ServerName:  serverName,
		WatchPrice:  watchPrice,
		State:       StateIdle,
		NextRefresh: time.Now(),
	}
	if !l.enabled {
		item.State = StateDisabled
		item.NextRefresh = time.Time{}
	}
	l.items = append(l.items, item)
	l.saveLocked()

	l.log.Info().Str("item", name).Int("server", serverID).Msg("Watch item added")
	return item, nil
}

// Remove deletes an entry and its cached result
func (l *List) Remove(name string, serverID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, item := range l.items {
		if item.Name == name && item.ServerID == serverID {
			l.items = append(l.items[:i], l.items[i+1:]...)
			delete(l.results, itemKey(name, serverID))
			l.saveLocked()
			return nil
		}
	}
	return ErrNotFound
}

// Rename changes an entry's item name. The cached result is dropped since
// it belongs to the old search term.
func (l *List) Rename(name string, serverID int, newName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.findLocked(name, serverID)
	if item == nil {
		return ErrNotFound
	}
	if newName != name && l.findLocked(newName, serverID) != nil {
		return ErrDuplicate
	}

	delete(l.results, item.Key())
	item.Name = newName
	l.mutatedLocked(item)
	l.saveLocked()
	return nil
}

// ChangeServer re-keys an entry to a different server
func (l *List) ChangeServer(name string, serverID, newServerID int, newServerName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.findLocked(name, serverID)
	if item == nil {
		return ErrNotFound
	}
	if newServerID != serverID && l.findLocked(name, newServerID) != nil {
		return ErrDuplicate
	}

	delete(l.results, item.Key())
	item.ServerID = newServerID
	item.ServerName = newServerName
	l.mutatedLocked(item)
	l.saveLocked()
	return nil
}

// SetWatchPrice changes the price threshold and drops the cached result so
// a stale bargain flag cannot outlive the old threshold
func (l *List) SetWatchPrice(name string, serverID int, price int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.findLocked(name, serverID)
	if item == nil {
		return ErrNotFound
	}

	item.WatchPrice = price
	delete(l.results, item.Key())
	l.mutatedLocked(item)
	l.saveLocked()
	return nil
}

// mutatedLocked records a mutation on an entry. Idle entries become due
// right away so the change is reflected promptly. In-flight entries only
// get their generation bumped: the running refresh carries the old
// identity and its outcome will be dropped, and the due time is left
// alone because it may only change while the entry is idle.
func (l *List) mutatedLocked(item *Item) {
	item.gen++
	if item.State == StateIdle {
		item.NextRefresh = time.Now()
	}
}

// Clear removes every entry and cached result
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.results = make(map[string]*Result)
	l.saveLocked()
}

// SetEnabled flips the master monitoring flag. Disabling clears every
// idle item's due time and marks it disabled instead of leaving a stale
// countdown; enabling makes everything due immediately.
func (l *List) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.enabled = enabled
	now := time.Now()
	for _, item := range l.items {
		if item.State != StateIdle && item.State != StateDisabled {
			continue
		}
		if enabled {
			item.State = StateIdle
			item.NextRefresh = now
		} else {
			item.State = StateDisabled
			item.NextRefresh = time.Time{}
		}
	}
}

// Enabled reports the master monitoring flag
func (l *List) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Items returns a snapshot of all entries
func (l *List) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := make([]Item, 0, len(l.items))
	for _, item := range l.items {
		snapshot = append(snapshot, *item)
	}
	return snapshot
}

// Len returns the entry count
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// ResultFor returns the cached result for an entry, if any
func (l *List) ResultFor(name string, serverID int) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results[itemKey(name, serverID)]
}

// ClaimDue transitions every due idle item to refreshing and returns one
// claim per item. Claiming under the list lock is what guarantees a
// single in-flight refresh per item; the claim snapshot is what keeps the
// worker from ever reading the live entry unlocked.
func (l *List) ClaimDue(now time.Time) []*Claim {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil
	}

	var due []*Claim
	for _, item := range l.items {
		if item.State != StateIdle || item.NextRefresh.IsZero() || now.Before(item.NextRefresh) {
			continue
		}
		item.State = StateRefreshing
		due = append(due, &Claim{
			item:       item,
			gen:        item.gen,
			Name:       item.Name,
			ServerID:   item.ServerID,
			ServerName: item.ServerName,
			WatchPrice: item.WatchPrice,
		})
	}
	return due
}

// BeginProcessing moves a claimed item from refreshing to processing
func (l *List) BeginProcessing(c *Claim) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.item.State == StateRefreshing {
		c.item.State = StateProcessing
	}
}

// StoreResult overwrites the cached result under the claim's key. A claim
// whose entry was mutated mid-flight is stale: its outcome is dropped so
// a fetch for the old identity can never resurrect a result the mutation
// just invalidated.
func (l *List) StoreResult(c *Claim, result *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.item.gen != c.gen {
		return
	}
	l.results[c.Key()] = result
}

// Release returns a claimed item to idle. The due time is only ever set
// here and in the mutation paths, always while neither refreshing nor
// processing remains in effect. A zero nextRefresh leaves the item
// unscheduled (cancellation exit). When the entry was mutated mid-flight
// the passed due time belongs to the old identity, so the new one becomes
// due immediately instead.
func (l *List) Release(c *Claim, nextRefresh time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := c.item
	item.State = StateIdle
	if item.gen != c.gen && !nextRefresh.IsZero() {
		nextRefresh = time.Now()
	}
	item.NextRefresh = nextRefresh
	if !l.enabled {
		item.State = StateDisabled
		item.NextRefresh = time.Time{}
	}
}

func (l *List) findLocked(name string, serverID int) *Item {
	for _, item := range l.items {
		if item.Name == name && item.ServerID == serverID {
			return item
		}
	}
	return nil
}

func (l *List) saveLocked() {
	if l.store == nil {
		return
	}
	cfg := &Config{Items: make([]Item, 0, len(l.items))}
	for _, item := range l.items {
		cfg.Items = append(cfg.Items, *item)
	}
	if err := l.store.SaveWatchConfig(cfg); err != nil {
		l.log.Error().Err(err).Msg("Failed to save watch list")
	}
}

// Save persists the current configuration explicitly (shutdown path)
func (l *List) Save() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saveLocked()
}
