// internal/locator/locator.go

// Package locator re-resolves a previously discovered element in the live
// DOM. The page may have mutated between discovery and test time, so a
// chain of strategies is tried in order, from the most precise identifier
// to fuzzy tag/text and tag/class matching. The winning node is tagged
// with a temporary data attribute so later steps can address it without
// repeating the search.
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

// TagAttribute is the temporary attribute stamped onto a located element.
// Attribute mutations do not disturb the structural fingerprint, which
// only folds in element counts and text nodes.
const TagAttribute = "data-deadclick-id"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is the slice of a browser session the locator needs.
type Session interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

// Match reports the outcome of a locate call. When Found is true the
// element carries TagAttribute=Token in the live DOM.
type Match struct {
	Found    bool
	Strategy string
	Token    string
}

// Locator runs the strategy chain with bounded retries.
type Locator struct {
	logger   *zap.Logger
	timeout  time.Duration
	attempts int
	delay    time.Duration
}

// New builds a locator from audit configuration.
func New(cfg config.AuditConfig, logger *zap.Logger) *Locator {
	timeout := cfg.LocateTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Locator{
		logger:   logger.Named("locator"),
		timeout:  timeout,
		attempts: 3,
		delay:    700 * time.Millisecond,
	}
}

type strategy struct {
	name string
	expr string
}

// Locate tries each strategy in order until one resolves to exactly one
// node. A strategy matching several nodes is ambiguous and skipped. The
// whole chain is retried a few times with a small delay, since elements
// routinely reappear after transient DOM churn. A Match with Found=false
// means every strategy was exhausted; that is a data point, not an error.
func (l *Locator) Locate(ctx context.Context, sess Session, info schemas.ElementInfo) (Match, error) {
	token := uuid.NewString()
	strategies := l.buildStrategies(info, token)
	if len(strategies) == 0 {
		return Match{}, nil
	}

	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(l.delay):
			case <-ctx.Done():
				return Match{}, ctx.Err()
			}
		}

		for _, st := range strategies {
			count, err := l.evalStrategy(ctx, sess, st)
			if err != nil {
				if ctx.Err() != nil {
					return Match{}, ctx.Err()
				}
				l.logger.Debug("Locator strategy evaluation failed.",
					zap.String("strategy", st.name), zap.Error(err))
				continue
			}

			switch {
			case count == 1:
				l.logger.Debug("Element located.",
					zap.String("strategy", st.name), zap.Int("attempt", attempt+1))
				return Match{Found: true, Strategy: st.name, Token: token}, nil
			case count > 1:
				l.logger.Debug("Locator strategy ambiguous, skipping.",
					zap.String("strategy", st.name), zap.Int("matches", count))
			}
		}
	}

	return Match{}, nil
}

func (l *Locator) evalStrategy(ctx context.Context, sess Session, st strategy) (int, error) {
	evalCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var count int
	if err := sess.Evaluate(evalCtx, st.expr, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// buildStrategies assembles the chain, dropping strategies whose inputs
// are empty. Order is fixed: id, css selector, xpath, tag plus normalized
// text, tag plus class subset.
func (l *Locator) buildStrategies(info schemas.ElementInfo, token string) []strategy {
	var out []strategy

	if info.ID != "" {
		out = append(out, strategy{"id", buildLocateExpr(matcherByID(info.ID), token)})
	}
	if info.CSSSelector != "" {
		out = append(out, strategy{"css_selector", buildLocateExpr(matcherByCSS(info.CSSSelector), token)})
	}
	if info.XPath != "" {
		out = append(out, strategy{"xpath", buildLocateExpr(matcherByXPath(info.XPath), token)})
	}
	if info.TagName != "" {
		if text := NormalizeText(info.VisibleText); text != "" {
			out = append(out, strategy{"tag_text", buildLocateExpr(matcherByTagText(info.TagName, text), token)})
		}
		if classes := strings.Fields(info.ClassNames); len(classes) > 0 {
			out = append(out, strategy{"tag_class", buildLocateExpr(matcherByTagClasses(info.TagName, classes), token)})
		}
	}

	return out
}

// NormalizeText collapses runs of whitespace, trims, and truncates to the
// same bound discovery applies when it captures visible text.
func NormalizeText(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if runes := []rune(collapsed); len(runes) > 100 {
		collapsed = string(runes[:100])
	}
	return collapsed
}

// jsString renders a Go string as a JavaScript string literal.
func jsString(s string) string {
	lit, err := json.MarshalToString(s)
	if err != nil {
		// Marshalling a string cannot fail; keep the locator total anyway.
		return `""`
	}
	return lit
}

func jsStringSlice(ss []string) string {
	lit, err := json.MarshalToString(ss)
	if err != nil {
		return `[]`
	}
	return lit
}

// buildLocateExpr wraps a strategy-specific matcher into the shared
// search harness: collect matches across the document and every
// same-origin frame, tag the node when the match is unique, and return
// the match count. Hidden matches are dropped before the count, so a
// visible node never loses its strategy to a display:none duplicate and
// a lone hidden match falls through to the next strategy.
func buildLocateExpr(matcher, token string) string {
	return fmt.Sprintf(`(() => {
	const matchesIn = %s;
	const visible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) { return false; }
		const win = el.ownerDocument.defaultView;
		if (!win) { return false; }
		const style = win.getComputedStyle(el);
		return style.display !== "none" && style.visibility !== "hidden";
	};
	const collect = (doc, acc) => {
		try {
			for (const el of matchesIn(doc)) { if (visible(el)) { acc.push(el); } }
		} catch (e) {}
		for (const frame of doc.querySelectorAll("iframe, frame")) {
			let child = null;
			try { child = frame.contentDocument; } catch (e) { child = null; }
			if (child) { collect(child, acc); }
		}
		return acc;
	};
	const found = collect(document, []);
	if (found.length === 1) {
		found[0].setAttribute(%s, %s);
	}
	return found.length;
})()`, matcher, jsString(TagAttribute), jsString(token))
}

func matcherByID(id string) string {
	return fmt.Sprintf(`(doc) => Array.from(doc.querySelectorAll("[id]")).filter((el) => el.id === %s)`,
		jsString(id))
}

func matcherByCSS(selector string) string {
	return fmt.Sprintf(`(doc) => {
		try { return Array.from(doc.querySelectorAll(%s)); } catch (e) { return []; }
	}`, jsString(selector))
}

func matcherByXPath(xpath string) string {
	return fmt.Sprintf(`(doc) => {
		const out = [];
		try {
			const r = doc.evaluate(%s, doc, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < r.snapshotLength; i++) {
				const n = r.snapshotItem(i);
				if (n && n.nodeType === 1) { out.push(n); }
			}
		} catch (e) {}
		return out;
	}`, jsString(xpath))
}

func matcherByTagText(tag, normText string) string {
	return fmt.Sprintf(`(doc) => {
		const norm = (s) => s.replace(/\s+/g, " ").trim().slice(0, 100);
		return Array.from(doc.getElementsByTagName(%s))
			.filter((el) => norm(el.innerText || el.textContent || "") === %s);
	}`, jsString(tag), jsString(normText))
}

func matcherByTagClasses(tag string, classes []string) string {
	return fmt.Sprintf(`(doc) => {
		const wanted = %s;
		return Array.from(doc.getElementsByTagName(%s))
			.filter((el) => wanted.every((c) => el.classList.contains(c)));
	}`, jsStringSlice(classes), jsString(tag))
}
