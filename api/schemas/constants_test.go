package schemas_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

// TestConstants verifies that all defined constants hold their expected wire
// values. These strings appear verbatim in published reports.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		// Click statuses.
		{"StatusActiveNavigation", schemas.StatusActiveNavigation, "active_navigation"},
		{"StatusActiveUIChange", schemas.StatusActiveUIChange, "active_ui_change"},
		{"StatusActiveTitleChange", schemas.StatusActiveTitleChange, "active_title_change"},
		{"StatusDeadClick", schemas.StatusDeadClick, "dead_click"},
		{"StatusNotClickable", schemas.StatusNotClickable, "not_clickable"},
		{"StatusElementNotFound", schemas.StatusElementNotFound, "element_not_found"},
		{"StatusError", schemas.StatusError, "error"},

		// Strictness levels.
		{"StrictnessStrict", schemas.StrictnessStrict, "strict"},
		{"StrictnessNormal", schemas.StrictnessNormal, "normal"},
		{"StrictnessLoose", schemas.StrictnessLoose, "loose"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, fmt.Sprintf("%v", tt.constant))
		})
	}
}

// TestClickStatusTallies pins down which statuses feed the active_clicks and
// dead_clicks report counters. Every status belongs to exactly one of the
// active, dead or error buckets.
func TestClickStatusTallies(t *testing.T) {
	t.Parallel()
	all := []schemas.ClickStatus{
		schemas.StatusActiveNavigation,
		schemas.StatusActiveUIChange,
		schemas.StatusActiveTitleChange,
		schemas.StatusDeadClick,
		schemas.StatusNotClickable,
		schemas.StatusElementNotFound,
		schemas.StatusError,
	}

	var active, dead, other int
	for _, s := range all {
		assert.False(t, s.IsActive() && s.IsDead(), "status %s is both active and dead", s)
		switch {
		case s.IsActive():
			active++
		case s.IsDead():
			dead++
		default:
			other++
		}
	}

	assert.Equal(t, 3, active)
	assert.Equal(t, 3, dead)
	assert.Equal(t, 1, other, "only the error status may fall outside active/dead")
	assert.False(t, schemas.StatusError.IsActive())
	assert.False(t, schemas.StatusError.IsDead())
}
