// internal/clicker/clicker_test.go
package clicker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/locator"
)

// fakeSession scripts the signals the clicker reads. Click dispatch flips
// it from the before state to the after state.
type fakeSession struct {
	t *testing.T

	urlBefore, urlAfter     string
	titleBefore, titleAfter string
	docsBefore, docsAfter   []string

	prep        prepared
	prepErr     error
	nativeErr   error
	scriptedOK  bool
	scriptedErr error

	clicked     bool
	runCalls    int
	scriptCalls int
	untagCalls  int
	untagLive   bool
}

func newFakeSession(t *testing.T) *fakeSession {
	docs := []string{`<html><body><button id="b">Go</button></body></html>`}
	return &fakeSession{
		t:           t,
		urlBefore:   "https://example.com/",
		urlAfter:    "https://example.com/",
		titleBefore: "Home",
		titleAfter:  "Home",
		docsBefore:  docs,
		docsAfter:   docs,
		prep:        prepared{Found: true, Visible: true, Enabled: true, X: 10, Y: 10, Width: 50, Height: 20},
		scriptedOK:  true,
	}
}

func (f *fakeSession) Run(ctx context.Context, actions ...chromedp.Action) error {
	f.runCalls++
	if f.nativeErr != nil {
		return f.nativeErr
	}
	f.clicked = true
	return nil
}

func (f *fakeSession) Evaluate(ctx context.Context, expr string, out any) error {
	switch {
	case expr == collectDocumentsJS:
		docs := f.docsBefore
		if f.clicked {
			docs = f.docsAfter
		}
		*(out.(*[]string)) = append([]string(nil), docs...)
	case strings.Contains(expr, "scrollIntoView"):
		if f.prepErr != nil {
			err := f.prepErr
			f.prepErr = nil
			return err
		}
		*(out.(*prepared)) = f.prep
	case strings.Contains(expr, "el.click"):
		f.scriptCalls++
		if f.scriptedErr != nil {
			return f.scriptedErr
		}
		if f.scriptedOK {
			f.clicked = true
		}
		*(out.(*bool)) = f.scriptedOK
	case strings.Contains(expr, "removeAttribute"):
		f.untagCalls++
		f.untagLive = ctx.Err() == nil
	default:
		f.t.Fatalf("unexpected expression: %s", expr)
	}
	return nil
}

func (f *fakeSession) Location(ctx context.Context) (string, error) {
	if f.clicked {
		return f.urlAfter, nil
	}
	return f.urlBefore, nil
}

func (f *fakeSession) Title(ctx context.Context) (string, error) {
	if f.clicked {
		return f.titleAfter, nil
	}
	return f.titleBefore, nil
}

type fakeLocator struct {
	match locator.Match
	err   error
}

func (f *fakeLocator) Locate(ctx context.Context, sess locator.Session, info schemas.ElementInfo) (locator.Match, error) {
	return f.match, f.err
}

func foundLocator() *fakeLocator {
	return &fakeLocator{match: locator.Match{Found: true, Strategy: "id", Token: "tok-1"}}
}

func newTestClicker(t *testing.T, loc ElementLocator) *Clicker {
	t.Helper()
	c := New(config.NewDefaultConfig().Audit, loc, zaptest.NewLogger(t))
	c.observation = time.Millisecond
	return c
}

func testInfo() schemas.ElementInfo {
	return schemas.ElementInfo{TagName: "button", VisibleText: "Go", ID: "b"}
}

func TestElementNotFound(t *testing.T) {
	sess := newFakeSession(t)
	c := newTestClicker(t, &fakeLocator{match: locator.Match{Found: false}})

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusElementNotFound, out.Status)
	assert.Equal(t, MessageElementNotFound, out.Message)
	assert.Equal(t, "https://example.com/", out.URLBefore)
	assert.Empty(t, out.URLAfter)
	assert.Zero(t, sess.runCalls)
	assert.Zero(t, sess.untagCalls, "nothing was tagged, nothing to clean")
}

func TestLocatorFailure(t *testing.T) {
	sess := newFakeSession(t)
	c := newTestClicker(t, &fakeLocator{err: errors.New("evaluate broke")})

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusError, out.Status)
	assert.Contains(t, out.Message, "evaluate broke")
}

func TestNotClickable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*prepared)
	}{
		{"hidden", func(p *prepared) { p.Visible = false }},
		{"disabled", func(p *prepared) { p.Enabled = false }},
		{"zero width", func(p *prepared) { p.Width = 0 }},
		{"zero height", func(p *prepared) { p.Height = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := newFakeSession(t)
			tc.mutate(&sess.prep)
			c := newTestClicker(t, foundLocator())

			out := c.TestElement(context.Background(), sess, testInfo())
			assert.Equal(t, schemas.StatusNotClickable, out.Status)
			assert.Equal(t, MessageNotClickable, out.Message)
			assert.Zero(t, sess.runCalls, "no click may be dispatched")
			assert.Equal(t, 1, sess.untagCalls, "the tagged element must still be cleaned")
		})
	}
}

func TestElementDetachedBeforePrepare(t *testing.T) {
	sess := newFakeSession(t)
	sess.prep = prepared{Found: false}
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusElementNotFound, out.Status)
	assert.Equal(t, MessageElementNotFound, out.Message)
}

func TestDeadClick(t *testing.T) {
	sess := newFakeSession(t)
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusDeadClick, out.Status)
	assert.Empty(t, out.Message, "dead clicks carry no error message")
	assert.Equal(t, "https://example.com/", out.URLBefore)
	assert.Equal(t, "https://example.com/", out.URLAfter)
	assert.Equal(t, 1, sess.runCalls)
	assert.Zero(t, sess.scriptCalls, "native click succeeded, no fallback")
	assert.Equal(t, 1, sess.untagCalls, "the tag attribute must be removed after the test")
}

func TestActiveNavigation(t *testing.T) {
	sess := newFakeSession(t)
	sess.urlAfter = "https://example.com/cart"
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusActiveNavigation, out.Status)
	assert.Equal(t, "https://example.com/", out.URLBefore)
	assert.Equal(t, "https://example.com/cart", out.URLAfter)
}

func TestActiveTitleChange(t *testing.T) {
	sess := newFakeSession(t)
	sess.titleAfter = "Home (1 item)"
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusActiveTitleChange, out.Status)
}

func TestActiveUIChange(t *testing.T) {
	sess := newFakeSession(t)
	sess.docsAfter = []string{`<html><body><button id="b">Go</button><div class="modal">Hi</div></body></html>`}
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusActiveUIChange, out.Status)
}

func TestNativeClickFallsBackToScript(t *testing.T) {
	sess := newFakeSession(t)
	sess.nativeErr = errors.New("input dispatch refused")
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusDeadClick, out.Status)
	assert.Equal(t, 1, sess.runCalls)
	assert.Equal(t, 1, sess.scriptCalls)
}

func TestOcclusionSkipsNativeClick(t *testing.T) {
	sess := newFakeSession(t)
	sess.prep.Occluded = true
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusDeadClick, out.Status)
	assert.Zero(t, sess.runCalls, "occluded point must not receive a native click")
	assert.Equal(t, 1, sess.scriptCalls)
}

func TestScriptFallbackFailure(t *testing.T) {
	sess := newFakeSession(t)
	sess.nativeErr = errors.New("input dispatch refused")
	sess.scriptedErr = errors.New("script blew up")
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusError, out.Status)
	assert.Contains(t, out.Message, "click intercepted")
	assert.Contains(t, out.Message, "script blew up")
}

func TestScriptFallbackElementVanished(t *testing.T) {
	sess := newFakeSession(t)
	sess.prep.Occluded = true
	sess.scriptedOK = false
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	assert.Equal(t, schemas.StatusError, out.Status)
	assert.Contains(t, out.Message, "element detached")
}

func TestPrepareRetriesOnce(t *testing.T) {
	sess := newFakeSession(t)
	sess.prepErr = errors.New("transient evaluation failure")
	c := newTestClicker(t, foundLocator())

	out := c.TestElement(context.Background(), sess, testInfo())
	require.Equal(t, schemas.StatusDeadClick, out.Status)
}

func TestUntagRunsOnCancelledContext(t *testing.T) {
	sess := newFakeSession(t)
	c := newTestClicker(t, foundLocator())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = c.TestElement(ctx, sess, testInfo())
	assert.Equal(t, 1, sess.untagCalls)
	assert.True(t, sess.untagLive, "cleanup must not inherit the test's cancellation")
}

func TestBuildExprsEmbedToken(t *testing.T) {
	prep := buildPrepareExpr("tok-42")
	assert.Contains(t, prep, locator.TagAttribute)
	assert.Contains(t, prep, "tok-42")
	assert.Contains(t, prep, "scrollIntoView")

	click := buildScriptedClickExpr("tok-42")
	assert.Contains(t, click, "tok-42")
	assert.Contains(t, click, "el.click")

	untag := buildUntagExpr("tok-42")
	assert.Contains(t, untag, "tok-42")
	assert.Contains(t, untag, "removeAttribute")
	assert.Contains(t, untag, locator.TagAttribute)
}

func TestFrameWalksCoverFramesets(t *testing.T) {
	// Discovery scans both <iframe> and frameset <frame> documents, so an
	// element found inside either must stay reachable here too.
	assert.Contains(t, buildPrepareExpr("tok-42"), `querySelectorAll("iframe, frame")`)
	assert.Contains(t, collectDocumentsJS, `querySelectorAll("iframe, frame")`)
}
