package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/challengeboard/challengeboard/worker/internal/config"
)

const defaultCooldown = 30 * time.Minute

// Event states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Event is one notification about the health of the sync cycle.
type Event struct {
	Cycle    string    `json:"cycle"`
	State    string    `json:"state"`
	Message  string    `json:"message"`
	Failures int       `json:"consecutive_failures"`
	At       time.Time `json:"at"`
}

// Notifier reports failing cycles to webhooks. The first failure of a streak
// fires immediately, later failures fire again only after the cooldown, and
// the first success after a streak sends a resolved event.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	webhooks []config.WebhookConfig
	cooldown time.Duration
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	failures int
	lastFire time.Time

	// Deliveries leave in dispatch order through one drain goroutine.
	qmu      sync.Mutex
	queue    []Event
	draining bool
	wg       sync.WaitGroup
}

// New creates a Notifier. One with no webhooks still tracks streaks and
// logs, but delivers nothing.
func New(cfg config.NotifyConfig) *Notifier {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Notifier{
		webhooks: cfg.Webhooks,
		cooldown: cooldown,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// CycleFailed records a failed cycle and notifies when due.
func (n *Notifier) CycleFailed(cycle string, err error) {
	now := n.now()

	n.mu.Lock()
	n.failures++
	due := n.failures == 1 || now.Sub(n.lastFire) >= n.cooldown
	if due {
		n.lastFire = now
	}
	ev := Event{
		Cycle:    cycle,
		State:    StateFiring,
		Message:  fmt.Sprintf("leaderboard sync failed (%d in a row): %v", n.failures, err),
		Failures: n.failures,
		At:       now,
	}
	n.mu.Unlock()

	if !due {
		slog.Debug("notify: failure within cooldown, not sent", "cycle", cycle, "failures", ev.Failures)
		return
	}
	slog.Warn("notify: cycle failing", "cycle", cycle, "failures", ev.Failures)
	n.dispatch(ev)
}

// CycleSucceeded ends a failure streak, if any, with a resolved event.
func (n *Notifier) CycleSucceeded(cycle string) {
	now := n.now()

	n.mu.Lock()
	failures := n.failures
	n.failures = 0
	n.lastFire = time.Time{}
	n.mu.Unlock()

	if failures == 0 {
		return
	}
	slog.Info("notify: cycle recovered", "cycle", cycle, "after_failures", failures)
	n.dispatch(Event{
		Cycle:    cycle,
		State:    StateResolved,
		Message:  fmt.Sprintf("leaderboard sync recovered after %d failed cycles", failures),
		Failures: failures,
		At:       now,
	})
}

// Failures returns the length of the current failure streak.
func (n *Notifier) Failures() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failures
}

// Wait blocks until every in-flight delivery has finished.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) dispatch(ev Event) {
	if len(n.webhooks) == 0 {
		return
	}
	n.qmu.Lock()
	defer n.qmu.Unlock()
	n.queue = append(n.queue, ev)
	n.wg.Add(1)
	if !n.draining {
		n.draining = true
		go n.drain()
	}
}

// drain delivers queued events one at a time and exits once the queue is
// empty.
func (n *Notifier) drain() {
	for {
		n.qmu.Lock()
		if len(n.queue) == 0 {
			n.draining = false
			n.qmu.Unlock()
			return
		}
		ev := n.queue[0]
		n.queue = n.queue[1:]
		n.qmu.Unlock()

		n.deliver(ev)
		n.wg.Done()
	}
}
