package schemas

import (
	"encoding/json"
	"fmt"
	"time"
)

// Strictness controls how permissive element discovery is. Looser settings
// trade a higher false-positive rate for recall.
type Strictness string

const (
	StrictnessStrict Strictness = "strict"
	StrictnessNormal Strictness = "normal"
	StrictnessLoose  Strictness = "loose"
)

// ParseStrictness validates a user-supplied strictness value. The empty
// string maps to StrictnessNormal.
func ParseStrictness(s string) (Strictness, error) {
	switch Strictness(s) {
	case StrictnessStrict, StrictnessNormal, StrictnessLoose:
		return Strictness(s), nil
	case "":
		return StrictnessNormal, nil
	default:
		return "", fmt.Errorf("invalid strictness %q (want strict, normal or loose)", s)
	}
}

// ClickStatus is the terminal classification of a single element test.
// Exactly one value is assigned per tested element.
type ClickStatus string

const (
	StatusActiveNavigation  ClickStatus = "active_navigation"
	StatusActiveUIChange    ClickStatus = "active_ui_change"
	StatusActiveTitleChange ClickStatus = "active_title_change"
	StatusDeadClick         ClickStatus = "dead_click"
	StatusNotClickable      ClickStatus = "not_clickable"
	StatusElementNotFound   ClickStatus = "element_not_found"
	StatusError             ClickStatus = "error"
)

// IsActive reports whether the status counts toward the report's
// active_clicks tally.
func (s ClickStatus) IsActive() bool {
	switch s {
	case StatusActiveNavigation, StatusActiveUIChange, StatusActiveTitleChange:
		return true
	}
	return false
}

// IsDead reports whether the status counts toward dead_clicks. Elements that
// could not be re-located or interacted with are dead from the user's point
// of view even though no click was observed.
func (s ClickStatus) IsDead() bool {
	switch s {
	case StatusDeadClick, StatusNotClickable, StatusElementNotFound:
		return true
	}
	return false
}

// ElementInfo is the immutable descriptor of a candidate element captured at
// discovery time. Href, OnClick and StatusCode are supplemental context; they
// do not participate in identity.
type ElementInfo struct {
	TagName     string `json:"tag_name"`
	VisibleText string `json:"text"`
	ClassNames  string `json:"class_names"`
	ID          string `json:"id"`
	XPath       string `json:"xpath"`
	CSSSelector string `json:"css_selector"`
	Href        string `json:"href,omitempty"`
	OnClick     string `json:"onclick,omitempty"`
	// StatusCode holds the HTTP status chain (redirects then final) from the
	// link probe, when enabled.
	StatusCode []int `json:"status_code,omitempty"`
}

// Identity returns the deduplication key. Two descriptors that agree on
// xpath, css selector and id refer to the same live node regardless of which
// discovery pass produced them.
func (e ElementInfo) Identity() string {
	return e.XPath + "\x1f" + e.CSSSelector + "\x1f" + e.ID
}

// TestResult records the outcome of testing one element. Created exactly once
// by the click simulator and immutable thereafter. ErrorMessage is non-empty
// only for error, not_clickable and element_not_found statuses.
type TestResult struct {
	ElementInfo  ElementInfo `json:"element_info"`
	ClickStatus  ClickStatus `json:"click_status"`
	ErrorMessage string      `json:"error_message"`
	URLBefore    string      `json:"url_before"`
	URLAfter     string      `json:"url_after"`
}

// ClassCount is one entry of Summary.MostCommonClasses. On the wire it is a
// two-element array ["class-name", count], not an object.
type ClassCount struct {
	Name  string
	Count int
}

// MarshalJSON encodes the pair form.
func (c ClassCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Name, c.Count})
}

// UnmarshalJSON decodes the pair form.
func (c *ClassCount) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("class count: %w", err)
	}
	if err := json.Unmarshal(pair[0], &c.Name); err != nil {
		return fmt.Errorf("class count name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &c.Count); err != nil {
		return fmt.Errorf("class count value: %w", err)
	}
	return nil
}

// Summary is derived from the TestResult collection and recomputed per run.
type Summary struct {
	TotalTested          int                 `json:"total_tested"`
	ActivePercentage     float64             `json:"active_percentage"`
	DeadPercentage       float64             `json:"dead_percentage"`
	ErrorPercentage      float64             `json:"error_percentage"`
	MostCommonClasses    []ClassCount        `json:"most_common_classes"`
	ClickStatusBreakdown map[ClickStatus]int `json:"click_status_breakdown"`
}

// Report is the top-level artifact of a run. A new run's report atomically
// replaces the previous one; no history is retained.
type Report struct {
	Summary            Summary      `json:"summary"`
	Results            []TestResult `json:"results"`
	TotalElementsFound int          `json:"total_elements_found"`
	ElementsTested     int          `json:"elements_tested"`
	ActiveClicks       int          `json:"active_clicks"`
	DeadClicks         int          `json:"dead_clicks"`
	Errors             int          `json:"errors"`
	URL                string       `json:"url"`
	Timestamp          time.Time    `json:"timestamp"`
}

// RunRequest is the boundary input that starts a run.
type RunRequest struct {
	URL        string     `json:"url"`
	WaitTime   int        `json:"wait_time"`
	Strictness Strictness `json:"strictness"`
}

// Validate normalizes and checks the request.
func (r *RunRequest) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	if r.WaitTime < 1 {
		return fmt.Errorf("wait_time must be >= 1 second, got %d", r.WaitTime)
	}
	s, err := ParseStrictness(string(r.Strictness))
	if err != nil {
		return err
	}
	r.Strictness = s
	return nil
}

// RunResponse is the envelope returned by the run endpoint.
type RunResponse struct {
	Status  string  `json:"status"`
	Summary Summary `json:"summary"`
	Report  *Report `json:"report"`
}
