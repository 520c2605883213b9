package domain

import "time"

type ScanState string

const (
	// ScanStarted: the crawler is still discovering files.
	ScanStarted ScanState = "started"
	// ScanCounting: discovery finished and the expected total is recorded;
	// only now can a zero remaining-counter mean completion.
	ScanCounting ScanState = "counting"
	ScanDone     ScanState = "done"
)

// Scan is one crawl run of a source connection. Remaining is decremented
// exactly once per terminal per-document outcome and never goes negative.
type Scan struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	UserID     string    `json:"user_id"`
	SourceType string    `json:"source_type"`
	State      ScanState `json:"state"`
	Remaining  int       `json:"remaining"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}
