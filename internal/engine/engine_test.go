// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/clicker"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSession simulates one worker's browser tab. Navigate records the
// URL and moves the fake location there, like a real load would.
type fakeSession struct {
	mu        sync.Mutex
	location  string
	navErr    error
	navigated []string
	closed    bool
}

func (s *fakeSession) Run(ctx context.Context, actions ...chromedp.Action) error { return nil }

func (s *fakeSession) Evaluate(ctx context.Context, expr string, out any) error { return nil }

func (s *fakeSession) Location(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, nil
}

func (s *fakeSession) Title(ctx context.Context) (string, error) { return "", nil }

func (s *fakeSession) Navigate(ctx context.Context, url string, settle time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navErr != nil {
		return s.navErr
	}
	s.navigated = append(s.navigated, url)
	s.location = url
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) setLocation(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = url
}

func (s *fakeSession) navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

// fakeProvider hands out sessions by call number, so tests can fail
// specific slots.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	next  func(call int) (Session, error)
}

func (p *fakeProvider) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	return p.next(call)
}

func (p *fakeProvider) acquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeTester records the order elements reach the protocol and returns
// canned outcomes.
type fakeTester struct {
	mu      sync.Mutex
	tested  []string
	outcome func(sess clicker.Session, info schemas.ElementInfo) clicker.Outcome
}

func (t *fakeTester) TestElement(ctx context.Context, sess clicker.Session, info schemas.ElementInfo) clicker.Outcome {
	t.mu.Lock()
	t.tested = append(t.tested, info.ID)
	t.mu.Unlock()
	if t.outcome != nil {
		return t.outcome(sess, info)
	}
	return clicker.Outcome{
		Status:    schemas.StatusDeadClick,
		URLBefore: "http://site.test/",
		URLAfter:  "http://site.test/",
	}
}

func (t *fakeTester) testedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tested...)
}

func testConfig(workers int) config.AuditConfig {
	return config.AuditConfig{
		Workers:        workers,
		WaitTime:       time.Second,
		ElementTimeout: 5 * time.Second,
	}
}

func elementFixtures(n int) []schemas.ElementInfo {
	elements := make([]schemas.ElementInfo, n)
	for i := range elements {
		elements[i] = schemas.ElementInfo{
			TagName: "button",
			ID:      "el-" + string(rune('a'+i)),
			XPath:   "/html/body/button[" + string(rune('1'+i)) + "]",
		}
	}
	return elements
}

func TestRunReturnsOneResultPerElementInOrder(t *testing.T) {
	elements := elementFixtures(5)
	provider := &fakeProvider{next: func(int) (Session, error) {
		return &fakeSession{}, nil
	}}
	tester := &fakeTester{outcome: func(_ clicker.Session, info schemas.ElementInfo) clicker.Outcome {
		status := schemas.StatusDeadClick
		if info.ID == "el-b" {
			status = schemas.StatusActiveUIChange
		}
		return clicker.Outcome{Status: status, URLBefore: "http://site.test/", URLAfter: "http://site.test/"}
	}}

	eng := New(testConfig(2), provider, tester, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.NoError(t, err)
	require.Len(t, results, len(elements))
	for i, res := range results {
		assert.Equal(t, elements[i], res.ElementInfo, "result %d out of order", i)
	}
	assert.Equal(t, schemas.StatusActiveUIChange, results[1].ClickStatus)
	assert.Equal(t, schemas.StatusDeadClick, results[0].ClickStatus)
	assert.ElementsMatch(t, []string{"el-a", "el-b", "el-c", "el-d", "el-e"}, tester.testedIDs())
}

func TestRunNoElements(t *testing.T) {
	provider := &fakeProvider{next: func(int) (Session, error) {
		t.Error("no session should be provisioned for an empty queue")
		return nil, errors.New("unexpected")
	}}

	eng := New(testConfig(2), provider, &fakeTester{}, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", nil)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, provider.acquireCount())
}

func TestRunCapsWorkersAtQueueLength(t *testing.T) {
	elements := elementFixtures(2)
	provider := &fakeProvider{next: func(int) (Session, error) {
		return &fakeSession{}, nil
	}}

	eng := New(testConfig(8), provider, &fakeTester{}, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.LessOrEqual(t, provider.acquireCount(), 2)
}

func TestRunProvisionFailureKillsOnlyThatSlot(t *testing.T) {
	elements := elementFixtures(4)
	provider := &fakeProvider{next: func(call int) (Session, error) {
		if call == 1 {
			return nil, &schemas.ProvisionError{Err: errors.New("chrome refused to start")}
		}
		return &fakeSession{}, nil
	}}
	tester := &fakeTester{}

	eng := New(testConfig(2), provider, tester, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, res := range results {
		assert.Equal(t, schemas.StatusDeadClick, res.ClickStatus)
	}
	assert.Len(t, tester.testedIDs(), 4)
}

func TestRunAbortsWhenNoWorkerSurvives(t *testing.T) {
	elements := elementFixtures(3)
	launchErr := &schemas.ProvisionError{Err: errors.New("no usable chrome binary")}
	provider := &fakeProvider{next: func(int) (Session, error) {
		return nil, launchErr
	}}

	eng := New(testConfig(2), provider, &fakeTester{}, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.Error(t, err)
	assert.Nil(t, results)
	var provErr *schemas.ProvisionError
	assert.ErrorAs(t, err, &provErr)
}

func TestRunNavigateFailureAbandonsSlot(t *testing.T) {
	elements := elementFixtures(3)
	provider := &fakeProvider{next: func(call int) (Session, error) {
		if call == 1 {
			return &fakeSession{navErr: errors.New("net::ERR_CONNECTION_REFUSED")}, nil
		}
		return &fakeSession{}, nil
	}}
	tester := &fakeTester{}

	eng := New(testConfig(2), provider, tester, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Len(t, tester.testedIDs(), 3)
}

func TestRunCancellationConvertsUnstartedElements(t *testing.T) {
	elements := elementFixtures(3)
	provider := &fakeProvider{next: func(int) (Session, error) {
		return &fakeSession{}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tester := &fakeTester{outcome: func(_ clicker.Session, _ schemas.ElementInfo) clicker.Outcome {
		cancel()
		return clicker.Outcome{Status: schemas.StatusActiveNavigation, URLBefore: "http://site.test/", URLAfter: "http://site.test/next"}
	}}

	eng := New(testConfig(1), provider, tester, nil, zaptest.NewLogger(t))
	results, err := eng.Run(ctx, "http://site.test/", elements)

	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, schemas.StatusActiveNavigation, results[0].ClickStatus)

	for _, res := range results[1:] {
		assert.Equal(t, schemas.StatusError, res.ClickStatus)
		assert.Equal(t, MessageNotTested, res.ErrorMessage)
		assert.Equal(t, "http://site.test/", res.URLBefore)
		assert.Equal(t, "http://site.test/", res.URLAfter)
	}
	assert.Len(t, tester.testedIDs(), 1, "cancellation must gate elements before the protocol runs")
}

func TestRunNavigatesBackAfterDrift(t *testing.T) {
	elements := elementFixtures(2)
	sess := &fakeSession{}
	provider := &fakeProvider{next: func(int) (Session, error) {
		return sess, nil
	}}
	tester := &fakeTester{outcome: func(s clicker.Session, info schemas.ElementInfo) clicker.Outcome {
		if info.ID == "el-a" {
			// A real navigation click would leave the tab on another page.
			s.(*fakeSession).setLocation("http://site.test/away")
			return clicker.Outcome{Status: schemas.StatusActiveNavigation, URLBefore: "http://site.test/", URLAfter: "http://site.test/away"}
		}
		return clicker.Outcome{Status: schemas.StatusDeadClick, URLBefore: "http://site.test/", URLAfter: "http://site.test/"}
	}}

	eng := New(testConfig(1), provider, tester, nil, zaptest.NewLogger(t))
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"http://site.test/", "http://site.test/"}, sess.navigations(),
		"worker should reload the target before the second element")
	assert.Equal(t, []string{"el-a", "el-b"}, tester.testedIDs())
}

func TestRunPacesClicks(t *testing.T) {
	elements := elementFixtures(3)
	provider := &fakeProvider{next: func(int) (Session, error) {
		return &fakeSession{}, nil
	}}

	cfg := testConfig(1)
	cfg.ClickRate = 50

	eng := New(cfg, provider, &fakeTester{}, nil, zaptest.NewLogger(t))
	started := time.Now()
	results, err := eng.Run(context.Background(), "http://site.test/", elements)

	require.NoError(t, err)
	require.Len(t, results, 3)
	// Burst 1 at 50/s means the second and third click each wait ~20ms.
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
}
