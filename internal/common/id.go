package common

import (
	"github.com/google/uuid"
)

// NewCrawlSessionID generates a unique correlation id for one coordinator
// crawl invocation, used only in logs and events.
// Format: crawl_<uuid>
func NewCrawlSessionID() string {
	return "crawl_" + uuid.New().String()
}

// NewRecordID generates a fallback correlation id for records that arrive
// without a natural key, used only for logging and event correlation.
// Format: rec_<uuid>
func NewRecordID() string {
	return "rec_" + uuid.New().String()
}
