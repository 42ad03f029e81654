// internal/results/aggregate.go

// Package results folds a run's TestResult collection into the published
// report: the top-level tallies, the percentage summary, the class
// frequency ranking and the per-status breakdown.
package results

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

// topClassCount bounds the class frequency ranking.
const topClassCount = 10

// BuildReport assembles the report for one run. The tallies derive from
// results alone; totalFound comes from discovery and may exceed the
// number tested when a run was cut short.
func BuildReport(url string, totalFound int, results []schemas.TestResult, now time.Time) schemas.Report {
	report := schemas.Report{
		Results:            results,
		TotalElementsFound: totalFound,
		ElementsTested:     len(results),
		URL:                url,
		Timestamp:          now,
	}

	for _, r := range results {
		switch {
		case r.ClickStatus.IsActive():
			report.ActiveClicks++
		case r.ClickStatus.IsDead():
			report.DeadClicks++
		default:
			report.Errors++
		}
	}

	report.Summary = summarize(report)
	return report
}

// summarize derives the percentage view from the tallies. Percentages are
// rounded to two decimals and reported as zero when nothing was tested.
func summarize(report schemas.Report) schemas.Summary {
	summary := schemas.Summary{
		TotalTested:          report.ElementsTested,
		MostCommonClasses:    mostCommonClasses(report.Results),
		ClickStatusBreakdown: statusBreakdown(report.Results),
	}
	if total := report.ElementsTested; total > 0 {
		summary.ActivePercentage = percentage(report.ActiveClicks, total)
		summary.DeadPercentage = percentage(report.DeadClicks, total)
		summary.ErrorPercentage = percentage(report.Errors, total)
	}
	return summary
}

func percentage(count, total int) float64 {
	return math.Round(float64(count)/float64(total)*100*100) / 100
}

// mostCommonClasses splits every tested element's class string into
// individual class names and ranks them by frequency, ties broken by
// first appearance. Only the top ten survive.
func mostCommonClasses(results []schemas.TestResult) []schemas.ClassCount {
	counts := make(map[string]int)
	var order []string
	for _, r := range results {
		for _, name := range strings.Fields(r.ElementInfo.ClassNames) {
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}

	ranked := make([]schemas.ClassCount, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, schemas.ClassCount{Name: name, Count: counts[name]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > topClassCount {
		ranked = ranked[:topClassCount]
	}
	return ranked
}

func statusBreakdown(results []schemas.TestResult) map[schemas.ClickStatus]int {
	breakdown := make(map[schemas.ClickStatus]int)
	for _, r := range results {
		breakdown[r.ClickStatus]++
	}
	return breakdown
}
