// internal/clicker/classify.go
package clicker

import "github.com/RudraKhare/DeadClickCrawler/api/schemas"

// Classify compares pre- and post-click snapshots and names the outcome.
// First matching rule wins: navigation beats a title change beats a
// structural change. No observable change at all is the defining signal
// of a dead click.
func Classify(before, after Snapshot) schemas.ClickStatus {
	switch {
	case after.URL != before.URL:
		return schemas.StatusActiveNavigation
	case after.Title != before.Title:
		return schemas.StatusActiveTitleChange
	case after.Fingerprint != before.Fingerprint:
		return schemas.StatusActiveUIChange
	default:
		return schemas.StatusDeadClick
	}
}
