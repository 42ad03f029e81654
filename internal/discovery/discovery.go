// internal/discovery/discovery.go

// Package discovery scans a rendered page for interactive elements and
// normalizes them into stable descriptors the rest of the pipeline can
// re-locate and test. Candidates are gathered by walking the full DOM,
// same-origin frames included, and scoring five independent
// interactivity signals per node; the configured strictness decides
// which combinations qualify. Descriptors are deduplicated by identity
// in first-seen order, nested wrapper/control pairs are collapsed, and
// link targets are optionally enriched with HEAD-probe status chains.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/probe"
)

// interactiveRoles are the ARIA roles counted as an interactivity signal.
var interactiveRoles = []string{"button", "link", "tab", "menuitem", "option", "switch", "treeitem"}

// initialFrameDepth bounds same-origin frame descent during the first
// scan. Deep scans raise it to the configured maximum.
const initialFrameDepth = 1

// Session is the slice of a browser session discovery drives.
type Session interface {
	Navigate(ctx context.Context, url string, settle time.Duration) error
	Evaluate(ctx context.Context, expr string, out any) error
	Location(ctx context.Context) (string, error)
}

// signalSet carries the per-candidate interactivity evidence computed in
// the page.
type signalSet struct {
	Native  bool `json:"native"`
	Aria    bool `json:"aria"`
	TestID  bool `json:"testid"`
	Cursor  bool `json:"cursor"`
	Handler bool `json:"handler"`
}

func (s signalSet) count() int {
	n := 0
	for _, set := range []bool{s.Native, s.Aria, s.TestID, s.Cursor, s.Handler} {
		if set {
			n++
		}
	}
	return n
}

// admitted applies the strictness tier: strict wants two independent
// signals, normal any native, ARIA or test-id signal, loose any signal
// at all (cursor styling and handler attributes included, a higher
// false-positive rate the caller opted into).
func (s signalSet) admitted(strictness schemas.Strictness) bool {
	switch strictness {
	case schemas.StrictnessStrict:
		return s.count() >= 2
	case schemas.StrictnessLoose:
		return s.count() >= 1
	default:
		return s.Native || s.Aria || s.TestID
	}
}

// candidate is the raw descriptor the scan script emits.
type candidate struct {
	TagName     string    `json:"tag_name"`
	Text        string    `json:"text"`
	ClassNames  string    `json:"class_names"`
	ID          string    `json:"id"`
	Href        string    `json:"href"`
	OnClick     string    `json:"onclick"`
	XPath       string    `json:"xpath"`
	CSSSelector string    `json:"css_selector"`
	Signals     signalSet `json:"signals"`
}

func (c candidate) toElementInfo() schemas.ElementInfo {
	return schemas.ElementInfo{
		TagName:     c.TagName,
		VisibleText: c.Text,
		ClassNames:  c.ClassNames,
		ID:          c.ID,
		XPath:       c.XPath,
		CSSSelector: c.CSSSelector,
		Href:        c.Href,
		OnClick:     c.OnClick,
	}
}

// DedupeSet tracks element identities in first-seen order. The deep
// scanner feeds newly revealed elements through the same set, so an
// element stays unique across expansion rounds no matter which pass
// surfaced it first.
type DedupeSet struct {
	seen  map[string]struct{}
	order []schemas.ElementInfo
}

// NewDedupeSet returns an empty set.
func NewDedupeSet() *DedupeSet {
	return &DedupeSet{seen: make(map[string]struct{})}
}

// Add records info unless its identity is already present and reports
// whether the element was new.
func (s *DedupeSet) Add(info schemas.ElementInfo) bool {
	key := info.Identity()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, info)
	return true
}

// Has reports whether an identity is already tracked.
func (s *DedupeSet) Has(identity string) bool {
	_, ok := s.seen[identity]
	return ok
}

// Len returns the number of tracked elements.
func (s *DedupeSet) Len() int {
	return len(s.order)
}

// Elements returns the tracked elements in first-seen order.
func (s *DedupeSet) Elements() []schemas.ElementInfo {
	out := make([]schemas.ElementInfo, len(s.order))
	copy(out, s.order)
	return out
}

// Discoverer turns a loaded page into a deduplicated element set.
type Discoverer struct {
	logger *zap.Logger
	prober *probe.Prober
}

// New builds a discoverer. prober may be nil, which disables link status
// enrichment.
func New(prober *probe.Prober, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		logger: logger.Named("discovery"),
		prober: prober,
	}
}

// Discover loads url, lets it settle and runs the initial scan pass into
// set. The deep scanner can widen the same set afterwards; Finalize
// produces the element list either way. A page with no interactive
// markup yields an empty set, which is a valid outcome, not an error.
func (d *Discoverer) Discover(ctx context.Context, sess Session, url string, settle time.Duration, strictness schemas.Strictness, set *DedupeSet) error {
	if err := sess.Navigate(ctx, url, settle); err != nil {
		return fmt.Errorf("loading %s: %w", url, err)
	}

	added, err := d.Scan(ctx, sess, initialFrameDepth, strictness, set)
	if err != nil {
		return err
	}

	d.logger.Info("Initial element scan complete.",
		zap.String("url", url),
		zap.Int("found", added),
		zap.String("strictness", string(strictness)),
	)
	return nil
}

// Scan evaluates the discovery script against the live document tree and
// folds admitted candidates into set. It returns how many were new.
func (d *Discoverer) Scan(ctx context.Context, sess Session, frameDepth int, strictness schemas.Strictness, set *DedupeSet) (int, error) {
	var cands []candidate
	if err := sess.Evaluate(ctx, buildScanExpr(frameDepth), &cands); err != nil {
		return 0, fmt.Errorf("element scan failed: %w", err)
	}

	added := 0
	for _, c := range cands {
		if !c.Signals.admitted(strictness) {
			continue
		}
		if set.Add(c.toElementInfo()) {
			added++
		}
	}

	d.logger.Debug("Scan pass complete.",
		zap.Int("candidates", len(cands)),
		zap.Int("admitted", added),
	)
	return added, nil
}

// Finalize runs nested-duplicate suppression over everything the scans
// collected and enriches link targets with probe results. The returned
// slice keeps first-seen order.
func (d *Discoverer) Finalize(ctx context.Context, pageURL string, set *DedupeSet) []schemas.ElementInfo {
	collected := set.Elements()
	elements := suppressNested(collected)
	if n := len(collected) - len(elements); n > 0 {
		d.logger.Debug("Suppressed nested duplicate elements.", zap.Int("suppressed", n))
	}
	d.enrich(ctx, pageURL, elements)
	return elements
}

// suppressNested drops descriptors that sit exactly one DOM level below
// another captured descriptor when both carry the same visible text or
// the same class string. Broad candidate criteria routinely capture a
// styled wrapper and the real control inside it as two entries; the
// child is the redundant one.
func suppressNested(elements []schemas.ElementInfo) []schemas.ElementInfo {
	byLength := make([]schemas.ElementInfo, len(elements))
	copy(byLength, elements)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i].XPath) < len(byLength[j].XPath)
	})

	discard := make(map[string]struct{})
	for i := 0; i < len(byLength); i++ {
		parent := byLength[i]
		if parent.XPath == "" {
			continue
		}
		if _, dropped := discard[parent.Identity()]; dropped {
			continue
		}
		for j := i + 1; j < len(byLength); j++ {
			child := byLength[j]
			if child.XPath == "" {
				continue
			}
			if _, dropped := discard[child.Identity()]; dropped {
				continue
			}
			if !strings.HasPrefix(child.XPath, parent.XPath) {
				continue
			}
			if strings.Count(child.XPath, "/") != strings.Count(parent.XPath, "/")+1 {
				continue
			}
			sameText := parent.VisibleText != "" && parent.VisibleText == child.VisibleText
			sameClass := parent.ClassNames != "" && parent.ClassNames == child.ClassNames
			if sameText || sameClass {
				discard[child.Identity()] = struct{}{}
			}
		}
	}

	if len(discard) == 0 {
		return elements
	}
	kept := make([]schemas.ElementInfo, 0, len(elements)-len(discard))
	for _, el := range elements {
		if _, dropped := discard[el.Identity()]; !dropped {
			kept = append(kept, el)
		}
	}
	return kept
}

// enrich resolves each element's href against the page URL and attaches
// the status chain from a HEAD probe. Every distinct target is probed at
// most once per call; the prober itself caches across runs.
func (d *Discoverer) enrich(ctx context.Context, pageURL string, elements []schemas.ElementInfo) {
	if d.prober == nil {
		return
	}

	chains := make(map[string][]int)
	for i := range elements {
		if ctx.Err() != nil {
			return
		}
		target, ok := probe.Resolve(pageURL, elements[i].Href)
		if !ok {
			continue
		}
		chain, probed := chains[target]
		if !probed {
			var err error
			chain, err = d.prober.Probe(ctx, target)
			if err != nil {
				d.logger.Debug("Link probe failed.", zap.String("target", target), zap.Error(err))
			}
			chains[target] = chain
		}
		if len(chain) > 0 {
			elements[i].StatusCode = chain
		}
	}
}
