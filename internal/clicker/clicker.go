// internal/clicker/clicker.go

// Package clicker executes the click-then-observe-then-classify protocol
// against a located element. Clickability is treated as an empirically
// observed property: the element is clicked, the page is given a fixed
// observation window, and the URL, title and structural fingerprint are
// compared before and after. Relying on any single signal produces false
// negatives, a modal opening is a DOM mutation with no URL or title
// change.
package clicker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/browser"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire messages for the two non-error terminal statuses.
const (
	MessageElementNotFound = "Element could not be located for clicking (after retries)"
	MessageNotClickable    = "Element is not displayed or enabled"
)

// retryDelay separates the single retry each protocol step is allowed.
const retryDelay = 250 * time.Millisecond

// untagTimeout bounds the best-effort removal of the locator's tag
// attribute after a test.
const untagTimeout = 2 * time.Second

// Session is the slice of a browser session the clicker drives.
type Session interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
	Evaluate(ctx context.Context, expr string, out any) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// ElementLocator re-resolves an element in the live DOM.
type ElementLocator interface {
	Locate(ctx context.Context, sess locator.Session, info schemas.ElementInfo) (locator.Match, error)
}

// Outcome is the classified result of testing one element.
type Outcome struct {
	Status    schemas.ClickStatus
	Message   string
	URLBefore string
	URLAfter  string
}

// Clicker runs the click protocol.
type Clicker struct {
	logger      *zap.Logger
	locator     ElementLocator
	observation time.Duration
}

// New builds a clicker. The observation window comes from audit
// configuration and bounds how long effects are given to settle.
func New(cfg config.AuditConfig, loc ElementLocator, logger *zap.Logger) *Clicker {
	observation := cfg.ObservationWindow
	if observation <= 0 {
		observation = 2 * time.Second
	}
	return &Clicker{
		logger:      logger.Named("clicker"),
		locator:     loc,
		observation: observation,
	}
}

// TestElement relocates info in the session, clicks it and classifies the
// outcome. Every failure is folded into the Outcome; nothing propagates
// as an error, so a single bad element can never sink the run.
func (c *Clicker) TestElement(ctx context.Context, sess Session, info schemas.ElementInfo) Outcome {
	match, err := c.locator.Locate(ctx, sess, info)
	if err != nil {
		return c.errorOutcome(ctx, sess, err.Error())
	}
	if !match.Found {
		return Outcome{
			Status:    schemas.StatusElementNotFound,
			Message:   MessageElementNotFound,
			URLBefore: c.currentURL(ctx, sess),
		}
	}
	defer c.untag(ctx, sess, match.Token)

	prep, err := c.prepare(ctx, sess, match.Token)
	if err != nil {
		return c.errorOutcome(ctx, sess, err.Error())
	}
	if !prep.Found {
		// The node detached between locate and scroll.
		return Outcome{
			Status:    schemas.StatusElementNotFound,
			Message:   MessageElementNotFound,
			URLBefore: c.currentURL(ctx, sess),
		}
	}
	if !prep.Visible || !prep.Enabled || prep.Width <= 0 || prep.Height <= 0 {
		return Outcome{
			Status:    schemas.StatusNotClickable,
			Message:   MessageNotClickable,
			URLBefore: c.currentURL(ctx, sess),
		}
	}

	before, err := c.snapshot(ctx, sess)
	if err != nil {
		return c.errorOutcome(ctx, sess, err.Error())
	}

	out := Outcome{URLBefore: before.URL}

	if err := c.dispatchClick(ctx, sess, match.Token, prep); err != nil {
		out.Status = schemas.StatusError
		out.Message = err.Error()
		return out
	}

	c.observe(ctx)

	after, err := c.snapshot(ctx, sess)
	if err != nil {
		out.Status = schemas.StatusError
		out.Message = err.Error()
		return out
	}

	out.URLAfter = after.URL
	out.Status = Classify(before, after)

	if out.Status == schemas.StatusDeadClick && SuspiciousTarget(info) {
		c.logger.Debug("Dead click on a suspicious target.",
			zap.String("tag", info.TagName),
			zap.String("text", info.VisibleText),
			zap.String("href", info.Href),
			zap.String("onclick", info.OnClick),
		)
	}

	return out
}

// prepared is the result of the scroll-and-inspect step.
type prepared struct {
	Found    bool    `json:"found"`
	Visible  bool    `json:"visible"`
	Enabled  bool    `json:"enabled"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Occluded bool    `json:"occluded"`
}

// prepare scrolls the tagged element into view and reports its geometry,
// visibility and whether another element sits on top of its click point.
// Retried once on a transient failure.
func (c *Clicker) prepare(ctx context.Context, sess Session, token string) (prepared, error) {
	expr := buildPrepareExpr(token)

	var prep prepared
	err := sess.Evaluate(ctx, expr, &prep)
	if err == nil {
		return prep, nil
	}
	if ctx.Err() != nil {
		return prepared{}, err
	}

	c.logger.Debug("Click preparation failed, retrying once.", zap.Error(err))
	if err := c.pause(ctx, retryDelay); err != nil {
		return prepared{}, err
	}
	if err := sess.Evaluate(ctx, expr, &prep); err != nil {
		return prepared{}, fmt.Errorf("click preparation failed: %w", err)
	}
	return prep, nil
}

// snapshot captures the page state, retrying once on a transient failure.
func (c *Clicker) snapshot(ctx context.Context, sess Session) (Snapshot, error) {
	snap, err := TakeSnapshot(ctx, sess)
	if err == nil {
		return snap, nil
	}
	if ctx.Err() != nil {
		return Snapshot{}, err
	}

	c.logger.Debug("Snapshot failed, retrying once.", zap.Error(err))
	if err := c.pause(ctx, retryDelay); err != nil {
		return Snapshot{}, err
	}
	return TakeSnapshot(ctx, sess)
}

// dispatchClick attempts a native pointer click at the element's center.
// When the point is occluded by an overlay, or the native click fails, it
// falls back to a script-dispatched click on the same node.
func (c *Clicker) dispatchClick(ctx context.Context, sess Session, token string, prep prepared) error {
	if !prep.Occluded {
		err := sess.Run(ctx, chromedp.MouseClickXY(prep.X, prep.Y))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &schemas.InteractionError{Op: "click dispatch", Err: err}
		}
		c.logger.Debug("Native click failed, falling back to script dispatch.", zap.Error(err))
	} else {
		c.logger.Debug("Click point occluded by an overlay, dispatching click via script.")
	}

	var clicked bool
	if err := sess.Evaluate(ctx, buildScriptedClickExpr(token), &clicked); err != nil {
		return &schemas.InteractionError{Op: "click intercepted", Err: err}
	}
	if !clicked {
		return &schemas.InteractionError{Op: "click intercepted", Err: errors.New("element detached before script dispatch")}
	}
	return nil
}

// untag removes the tag attribute the locator stamped onto the element,
// leaving the DOM as the test found it. It runs on a detached context so
// cleanup still happens when the element's test was cancelled; the
// session lifetime bounds it regardless. A click that navigated away is
// a no-op here, the tagged node no longer exists.
func (c *Clicker) untag(ctx context.Context, sess Session, token string) {
	cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), untagTimeout)
	defer cancel()

	if err := sess.Evaluate(cleanupCtx, buildUntagExpr(token), nil); err != nil {
		c.logger.Debug("Failed to remove the locator tag.", zap.String("token", token), zap.Error(err))
	}
}

// observe waits the fixed window for click effects to settle.
func (c *Clicker) observe(ctx context.Context) {
	_ = c.pause(ctx, c.observation)
}

func (c *Clicker) pause(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Clicker) errorOutcome(ctx context.Context, sess Session, msg string) Outcome {
	return Outcome{
		Status:    schemas.StatusError,
		Message:   msg,
		URLBefore: c.currentURL(ctx, sess),
	}
}

func (c *Clicker) currentURL(ctx context.Context, sess Session) string {
	url, err := sess.Location(ctx)
	if err != nil {
		return ""
	}
	return url
}

// jsLiteral renders a Go string as a JavaScript string literal.
func jsLiteral(s string) string {
	lit, err := json.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return lit
}

// findByTokenJS returns a JS helper that locates the tagged element in
// the document or any same-origin frame, accumulating frame offsets so
// coordinates come out in top-viewport space.
func findByTokenJS(token string) string {
	selector := fmt.Sprintf(`[%s=%q]`, locator.TagAttribute, token)
	return fmt.Sprintf(`const SEL = %s;
	const find = (doc, offX, offY) => {
		const el = doc.querySelector(SEL);
		if (el) { return { el: el, doc: doc, offX: offX, offY: offY }; }
		for (const frame of doc.querySelectorAll("iframe, frame")) {
			let child = null;
			try { child = frame.contentDocument; } catch (e) { child = null; }
			if (!child) { continue; }
			const r = frame.getBoundingClientRect();
			const hit = find(child, offX + r.left, offY + r.top);
			if (hit) { return hit; }
		}
		return null;
	};`, jsLiteral(selector))
}

func buildPrepareExpr(token string) string {
	return fmt.Sprintf(`(() => {
	%s
	const hit = find(document, 0, 0);
	if (!hit) { return { found: false, visible: false, enabled: false, x: 0, y: 0, width: 0, height: 0, occluded: false }; }
	const el = hit.el;
	el.scrollIntoView({ behavior: "instant", block: "center", inline: "center" });
	const rect = el.getBoundingClientRect();
	const win = hit.doc.defaultView;
	const style = win ? win.getComputedStyle(el) : null;
	const visible = rect.width > 0 && rect.height > 0 && el.getClientRects().length > 0 &&
		(!style || (style.visibility !== "hidden" && style.display !== "none"));
	const enabled = el.disabled !== true;
	const cx = rect.left + rect.width / 2;
	const cy = rect.top + rect.height / 2;
	let occluded = false;
	try {
		const top = hit.doc.elementFromPoint(cx, cy);
		occluded = !!(top && top !== el && !el.contains(top) && !top.contains(el));
	} catch (e) {}
	return { found: true, visible: visible, enabled: enabled, x: hit.offX + cx, y: hit.offY + cy, width: rect.width, height: rect.height, occluded: occluded };
})()`, findByTokenJS(token))
}

func buildScriptedClickExpr(token string) string {
	return fmt.Sprintf(`(() => {
	%s
	const hit = find(document, 0, 0);
	if (!hit) { return false; }
	const el = hit.el;
	if (typeof el.click === "function") { el.click(); }
	else { el.dispatchEvent(new MouseEvent("click", { bubbles: true, cancelable: true, view: hit.doc.defaultView })); }
	return true;
})()`, findByTokenJS(token))
}

func buildUntagExpr(token string) string {
	return fmt.Sprintf(`(() => {
	%s
	const hit = find(document, 0, 0);
	if (hit) { hit.el.removeAttribute(%s); }
})()`, findByTokenJS(token), jsLiteral(locator.TagAttribute))
}
