package services

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"golang.org/x/sync/errgroup"
)

// janitorInterval is how often expired dedup claims are swept
const janitorInterval = time.Minute

// Dispatcher runs trade execution for accepted alerts in the background.
// Alerts are taken from a queue one at a time, so a user's alerts execute in
// arrival order; the users of one alert run in parallel up to Workers.
type Dispatcher struct {
	users    *UserService
	gateways broker.GatewayFactory
	executor *Executor
	gate     *DedupGate
	workers  int

	queue chan *models.Alert
	// intake guards queue sends against the final drain
	intake sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	logger *log.Logger
}

// NewDispatcher creates a dispatcher; gate may be nil to disable the claim janitor
func NewDispatcher(cfg config.ExecutionConfig, users *UserService, gateways broker.GatewayFactory, executor *Executor, gate *DedupGate) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		users:    users,
		gateways: gateways,
		executor: executor,
		gate:     gate,
		workers:  workers,
		queue:    make(chan *models.Alert, size),
		logger:   log.New(log.Writer(), "[Dispatcher] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (d *Dispatcher) SetLogger(logger *log.Logger) {
	d.logger = logger
}

// Submit enqueues an alert without blocking. It reports false when the queue
// is full or the dispatcher has stopped taking work.
func (d *Dispatcher) Submit(alert *models.Alert) bool {
	d.intake.RLock()
	defer d.intake.RUnlock()
	if d.closed {
		d.logger.Printf("Dispatcher stopped, refusing execution of alert %s", alert.ID)
		return false
	}
	select {
	case d.queue <- alert:
		return true
	default:
		d.logger.Printf("Queue full, dropping execution of alert %s", alert.ID)
		return false
	}
}

// Start launches the queue consumer and the claim janitor. Both stop when ctx
// is done. Cancelling ctx never interrupts exchange calls; alerts already
// queued are still executed and later submissions are refused.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case alert := <-d.queue:
				d.Process(context.WithoutCancel(ctx), alert)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	}()

	if d.gate == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := d.gate.Sweep(ctx); err != nil {
					d.logger.Printf("Janitor: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until Start's goroutines have exited
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	d.intake.Lock()
	d.closed = true
	d.intake.Unlock()

	ctx := context.Background()
	for {
		select {
		case alert := <-d.queue:
			d.Process(ctx, alert)
		default:
			return
		}
	}
}

// Process executes one alert for every eligible user and returns when all are done
func (d *Dispatcher) Process(ctx context.Context, alert *models.Alert) {
	users, err := d.users.EligibleForAlert(ctx, alert)
	if err != nil {
		d.logger.Printf("Alert %s: %v", alert.ID, err)
		return
	}
	if len(users) == 0 {
		d.logger.Printf("Alert %s: no eligible users", alert.ID)
		return
	}

	started := time.Now()
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i := range users {
		user := &users[i]
		g.Go(func() error {
			d.runUser(ctx, alert, user)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Printf("Alert %s %s %s executed for %d users in %s",
		alert.ID, alert.Instrument, alert.Action, len(users), time.Since(started).Round(time.Millisecond))
}

// runUser is the isolation boundary of one user: a panic abandons only this
// user's remaining executions for the alert.
func (d *Dispatcher) runUser(ctx context.Context, alert *models.Alert, user *models.User) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("Internal failure for user %s on alert %s: %v\n%s", user.ID, alert.ID, r, debug.Stack())
		}
	}()

	execs := ResolveExecutions(alert, user)
	if len(execs) == 0 {
		return
	}

	gw, err := d.gateways.New(user.Credentials())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrNoCredentials, err)
		for _, exec := range execs {
			d.executor.RecordFailure(ctx, alert, exec, err)
		}
		return
	}

	for _, exec := range execs {
		if err := d.executor.Execute(ctx, gw, alert, exec); err != nil {
			d.logger.Printf("User %s %s on alert %s: %v", user.ID, exec.StrategyType, alert.ID, err)
		}
	}
}
