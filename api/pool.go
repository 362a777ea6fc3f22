package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kata-board/domain"
)

// Publisher delivers change notices to the outside world.
type Publisher interface {
	PublishChange(ctx context.Context, n domain.ChangeNotice) error
}

// NotifierConfig sizes the notice worker pool.
type NotifierConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// NotifierPool publishes change notices on background workers. When the
// buffer stays full past the handoff timeout the notice is published inline.
// Publish failures are logged and never reach the caller.
type NotifierPool struct {
	pub       Publisher
	log       *log.Logger
	cfg       NotifierConfig
	jobs      chan domain.ChangeNotice
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// StartNotifier starts cfg.Workers goroutines draining the notice buffer.
func StartNotifier(pub Publisher, cfg NotifierConfig, logger *log.Logger) *NotifierPool {
	if pub == nil {
		panic("api.StartNotifier: publisher is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers < 0 {
		cfg.Workers = 0
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	p := &NotifierPool{
		pub:  pub,
		log:  logger,
		cfg:  cfg,
		jobs: make(chan domain.ChangeNotice, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("change notifier started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return p
}

// Notify stamps the notice and hands it to a worker.
func (p *NotifierPool) Notify(n domain.ChangeNotice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp == 0 {
		n.Timestamp = nextTimestamp()
	}
	if p.tryHandoff(n) {
		return
	}
	p.log.WithField("project", n.ProjectKey).Warn("notice buffer saturated; publishing inline")
	p.publish(n, -1)
}

// Close stops accepting notices and waits for queued ones to drain.
func (p *NotifierPool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *NotifierPool) worker(id int) {
	defer p.wg.Done()
	for n := range p.jobs {
		p.publish(n, id)
	}
}

func (p *NotifierPool) publish(n domain.ChangeNotice, worker int) {
	ctx := context.Background()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	if err := p.pub.PublishChange(ctx, n); err != nil {
		p.log.WithFields(log.Fields{
			"error":   err,
			"notice":  n.ID,
			"type":    n.Type,
			"project": n.ProjectKey,
			"worker":  worker,
		}).Error("publish change notice failed")
	}
}

func (p *NotifierPool) tryHandoff(n domain.ChangeNotice) bool {
	if ok, closed := trySendNonBlocking(p.jobs, n); closed {
		return false
	} else if ok {
		return true
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(p.jobs, n, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan domain.ChangeNotice, n domain.ChangeNotice) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- n:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.ChangeNotice, n domain.ChangeNotice, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- n:
		return true, false
	case <-timer:
		return false, false
	}
}
