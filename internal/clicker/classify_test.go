// internal/clicker/classify_test.go
package clicker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

func TestClassifyPriority(t *testing.T) {
	base := Snapshot{
		URL:         "https://example.com/",
		Title:       "Home",
		Fingerprint: Fingerprint{NodeCount: 40, TextHash: 0xabc},
	}

	tests := []struct {
		name  string
		after Snapshot
		want  schemas.ClickStatus
	}{
		{
			"navigation wins over everything",
			Snapshot{URL: "https://example.com/cart", Title: "Cart", Fingerprint: Fingerprint{NodeCount: 99, TextHash: 1}},
			schemas.StatusActiveNavigation,
		},
		{
			"title change without navigation",
			Snapshot{URL: base.URL, Title: "Home (1)", Fingerprint: Fingerprint{NodeCount: 99, TextHash: 1}},
			schemas.StatusActiveTitleChange,
		},
		{
			"structure change only",
			Snapshot{URL: base.URL, Title: base.Title, Fingerprint: Fingerprint{NodeCount: 41, TextHash: 0xabc}},
			schemas.StatusActiveUIChange,
		},
		{
			"text-only mutation counts as ui change",
			Snapshot{URL: base.URL, Title: base.Title, Fingerprint: Fingerprint{NodeCount: 40, TextHash: 0xdef}},
			schemas.StatusActiveUIChange,
		},
		{
			"no observable change",
			base,
			schemas.StatusDeadClick,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(base, tc.after))
		})
	}
}
