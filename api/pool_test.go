package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"kata-board/domain"
)

type recordingPublisher struct {
	mu      sync.Mutex
	notices []domain.ChangeNotice
	err     error
	block   chan struct{}
}

func (r *recordingPublisher) PublishChange(ctx context.Context, n domain.ChangeNotice) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

func (r *recordingPublisher) Notices() []domain.ChangeNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChangeNotice(nil), r.notices...)
}

func TestNotifierPoolPublishesStampedNotices(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	pool := StartNotifier(pub, NotifierConfig{Workers: 2, Buffer: 4, Timeout: time.Second, HandoffTimeout: 10 * time.Millisecond}, logger)

	pool.Notify(domain.ChangeNotice{ProjectKey: "P1", Type: domain.HuMoved, Actor: "1"})
	pool.Notify(domain.ChangeNotice{ProjectKey: "P1", Type: domain.ProjectUpdated, Actor: "1"})
	pool.Close()

	got := pub.Notices()
	if len(got) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, n := range got {
		if n.ID == "" || n.Timestamp == 0 {
			t.Fatalf("notice not stamped: %+v", n)
		}
		if seen[n.ID] {
			t.Fatalf("duplicate notice id %s", n.ID)
		}
		seen[n.ID] = true
	}
}

func TestNotifierPoolFallsBackInline(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{}
	pool := StartNotifier(pub, NotifierConfig{Workers: 0, Buffer: 0}, logger)
	t.Cleanup(pool.Close)

	pool.Notify(domain.ChangeNotice{ProjectKey: "P1", Type: domain.ProjectCreated})

	if len(pub.Notices()) != 1 {
		t.Fatalf("expected inline publish")
	}
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "notice buffer saturated; publishing inline" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected saturation warning")
	}
}

func TestNotifierPoolLogsPublishFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("queue down")}
	pool := StartNotifier(pub, NotifierConfig{Workers: 1, Buffer: 1}, logger)

	pool.Notify(domain.ChangeNotice{ProjectKey: "P1", Type: domain.ProjectDeleted})
	pool.Close()

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "publish change notice failed" {
		t.Fatalf("expected failure log, got %#v", entry)
	}
	if entry.Data["project"] != "P1" || entry.Data["type"] != domain.ProjectDeleted {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
}

func TestTryHandoffWaitsForCapacity(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool := &NotifierPool{
		log:  logger,
		cfg:  NotifierConfig{HandoffTimeout: 50 * time.Millisecond},
		jobs: make(chan domain.ChangeNotice, 1),
	}
	pool.jobs <- domain.ChangeNotice{}

	done := make(chan bool, 1)
	go func() {
		done <- pool.tryHandoff(domain.ChangeNotice{})
	}()

	select {
	case <-done:
		t.Fatal("tryHandoff returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-pool.jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful handoff after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for handoff completion")
	}
}

func TestTryHandoffTimesOut(t *testing.T) {
	pool := &NotifierPool{
		cfg:  NotifierConfig{HandoffTimeout: 30 * time.Millisecond},
		jobs: make(chan domain.ChangeNotice, 1),
	}
	pool.jobs <- domain.ChangeNotice{}

	if pool.tryHandoff(domain.ChangeNotice{}) {
		t.Fatal("expected handoff to fail when timeout elapsed")
	}
	select {
	case <-pool.jobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTryHandoffReturnsFalseWhenClosed(t *testing.T) {
	pool := &NotifierPool{jobs: make(chan domain.ChangeNotice)}
	close(pool.jobs)

	if pool.tryHandoff(domain.ChangeNotice{}) {
		t.Fatal("expected handoff to fail when channel is closed")
	}
}

func TestTryHandoffNoWaitWhenZeroTimeout(t *testing.T) {
	pool := &NotifierPool{jobs: make(chan domain.ChangeNotice, 1)}
	pool.jobs <- domain.ChangeNotice{}

	if pool.tryHandoff(domain.ChangeNotice{}) {
		t.Fatal("expected handoff to fail when buffer full and no timeout")
	}

	<-pool.jobs

	if !pool.tryHandoff(domain.ChangeNotice{}) {
		t.Fatal("expected handoff to succeed when buffer has capacity")
	}
}
