// internal/discovery/deepscan.go
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

// hoverSelectors receive synthetic mouseover events to open hover-driven
// menus before each rescan.
var hoverSelectors = []string{".menu-item", ".dropdown", `[aria-haspopup="true"]`, "[data-hover]"}

// expanderSelectors are clicked once each to unfold collapsed content.
var expanderSelectors = []string{".accordion__toggle", ".dropdown-toggle", `[aria-expanded="false"]`, "[data-toggle]"}

// expandedMarker is stamped onto clicked expanders so a rescan within the
// same page never re-clicks them, even if a re-render shifted their
// identity.
const expandedMarker = "data-deadclick-expanded"

const (
	// frameworkSettle gives client-side frameworks time to react to the
	// synthetic interactions before the rescan.
	frameworkSettle = 2 * time.Second
	scrollPause     = 500 * time.Millisecond
)

// DeepScanner widens the interactive surface beyond the initial render:
// it sweeps the viewport down the page, opens hover menus, clicks
// expanders and rescans, repeating until a round reveals nothing new or
// the depth bound is hit. Clicked containers are tracked in a visited
// set keyed on element identity so a toggle that re-reveals its own
// trigger cannot loop the expansion.
type DeepScanner struct {
	logger      *zap.Logger
	disc        *Discoverer
	maxDepth    int
	settle      time.Duration
	scrollPause time.Duration
}

// NewDeepScanner builds a scanner around disc. The configured max depth
// bounds both the number of expansion rounds and how deep rescans
// descend into nested same-origin frames.
func NewDeepScanner(disc *Discoverer, cfg config.AuditConfig, logger *zap.Logger) *DeepScanner {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	return &DeepScanner{
		logger:      logger.Named("deepscan"),
		disc:        disc,
		maxDepth:    maxDepth,
		settle:      frameworkSettle,
		scrollPause: scrollPause,
	}
}

// Expand runs the interaction-and-rescan loop against the page currently
// loaded in sess, adding anything new to set and returning the newly
// revealed elements. If an expander click navigates away, the page is
// restored and expansion stops; whatever was collected so far stands.
func (s *DeepScanner) Expand(ctx context.Context, sess Session, strictness schemas.Strictness, set *DedupeSet) ([]schemas.ElementInfo, error) {
	home, err := sess.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("deep scan could not read the page location: %w", err)
	}

	var revealed []schemas.ElementInfo
	visited := make(map[string]struct{})

	if err := s.scrollSweep(ctx, sess); err != nil {
		return revealed, err
	}

	for round := 1; round <= s.maxDepth; round++ {
		if err := ctx.Err(); err != nil {
			return revealed, err
		}

		s.hover(ctx, sess)
		clicked := s.clickExpanders(ctx, sess, visited)

		if err := s.wait(ctx, s.settle); err != nil {
			return revealed, err
		}

		moved, err := s.ensureLocation(ctx, sess, home)
		if err != nil {
			return revealed, err
		}
		if moved {
			break
		}

		added, err := s.disc.Scan(ctx, sess, s.maxDepth, strictness, set)
		if err != nil {
			return revealed, err
		}
		if added > 0 {
			elems := set.Elements()
			revealed = append(revealed, elems[len(elems)-added:]...)
		}

		s.logger.Debug("Deep scan round complete.",
			zap.Int("round", round),
			zap.Int("expanded", clicked),
			zap.Int("revealed", added),
		)

		if clicked == 0 && added == 0 {
			break
		}
	}

	s.logger.Info("Deep scan finished.",
		zap.Int("expanded", len(visited)),
		zap.Int("revealed", len(revealed)),
	)
	return revealed, nil
}

// scrollSweep walks the viewport through the page so lazy-loaded and
// scroll-triggered content mounts before the first rescan.
func (s *DeepScanner) scrollSweep(ctx context.Context, sess Session) error {
	var height int
	if err := sess.Evaluate(ctx, "document.body.scrollHeight", &height); err != nil {
		s.logger.Debug("Scroll sweep skipped.", zap.Error(err))
		return nil
	}
	if height <= 0 {
		return nil
	}
	for _, y := range []int{0, height / 4, height / 2, 3 * height / 4, height - 1} {
		if err := sess.Evaluate(ctx, fmt.Sprintf("window.scrollTo(0, %d)", y), nil); err != nil {
			s.logger.Debug("Scroll step failed.", zap.Int("y", y), zap.Error(err))
		}
		if err := s.wait(ctx, s.scrollPause); err != nil {
			return err
		}
	}
	return nil
}

// hover fires synthetic mouseover events at common menu triggers,
// descending into same-origin frames to the rescan depth.
func (s *DeepScanner) hover(ctx context.Context, sess Session) {
	var fired int
	if err := sess.Evaluate(ctx, buildHoverExpr(s.maxDepth), &fired); err != nil {
		s.logger.Debug("Hover pass failed.", zap.Error(err))
		return
	}
	if fired > 0 {
		s.logger.Debug("Hovered menu triggers.", zap.Int("count", fired))
	}
}

// expansion is the result of one expander pass.
type expansion struct {
	Clicked int      `json:"clicked"`
	Keys    []string `json:"keys"`
}

// clickExpanders clicks every visible, unvisited expander once and
// records its identity in visited.
func (s *DeepScanner) clickExpanders(ctx context.Context, sess Session, visited map[string]struct{}) int {
	keys := make([]string, 0, len(visited))
	for k := range visited {
		keys = append(keys, k)
	}

	var exp expansion
	if err := sess.Evaluate(ctx, buildExpanderExpr(keys, s.maxDepth), &exp); err != nil {
		s.logger.Debug("Expander pass failed.", zap.Error(err))
		return 0
	}
	for _, k := range exp.Keys {
		visited[k] = struct{}{}
	}
	return exp.Clicked
}

// ensureLocation re-navigates when an expander click left the page.
// Expansion cannot safely continue against a different document, so the
// caller stops after a restore.
func (s *DeepScanner) ensureLocation(ctx context.Context, sess Session, home string) (bool, error) {
	loc, err := sess.Location(ctx)
	if err != nil {
		return false, err
	}
	if loc == home {
		return false, nil
	}

	s.logger.Warn("Deep scan interaction navigated away, restoring the page.",
		zap.String("expected", home),
		zap.String("landed", loc),
	)
	if err := sess.Navigate(ctx, home, s.settle); err != nil {
		return true, fmt.Errorf("restoring %s: %w", home, err)
	}
	return true, nil
}

func (s *DeepScanner) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
