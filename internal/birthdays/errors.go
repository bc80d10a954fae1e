package birthdays

import "fmt"

// ScrapeError means the listing itself could not be read: the container never
// rendered, or its markup could not be parsed. Per-item problems never produce one.
type ScrapeError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ScrapeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scrape %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("scrape %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }
