package publisher

// Event kinds published to the notification stream
const (
	KindCrawlProgress = "crawl_progress"
	KindMonitorAlert  = "monitor_alert"
	KindRateLimit     = "rate_limit"
)

// Publisher represents a notification publisher for UI-facing consumers
type Publisher interface {
	// Publish publishes an event payload under the given kind
	Publish(kind string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher
	Close() error
}
