// internal/clicker/suspicious.go
package clicker

import (
	"strings"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

// deadHrefPatterns are href values that can never lead anywhere.
var deadHrefPatterns = map[string]struct{}{
	"":                    {},
	"#":                   {},
	"javascript:void(0)":  {},
	"javascript:void(0);": {},
	"javascript:":         {},
	"javascript::void(0)": {},
	"void(0)":             {},
	"undefined":           {},
	"null":                {},
	"about:blank":         {},
}

// SuspiciousTarget reports whether an element's declared target looks
// like a placeholder that goes nowhere. It refines how a dead click is
// logged, never how it is classified.
func SuspiciousTarget(info schemas.ElementInfo) bool {
	href := strings.ToLower(strings.ReplaceAll(info.Href, " ", ""))
	onclick := strings.ToLower(strings.ReplaceAll(info.OnClick, " ", ""))

	if _, dead := deadHrefPatterns[href]; dead {
		return true
	}
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "void(0)") {
		return true
	}

	switch onclick {
	case "void(0)", "javascript:void(0)", "":
		return true
	}
	return strings.HasPrefix(onclick, "javascript:")
}
