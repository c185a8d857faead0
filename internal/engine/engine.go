// Package engine coordinates check passes: it selects due monitors, probes
// them with bounded concurrency under a per-monitor lock, records history and
// runtime state, and drives the incident state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/health"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/incident"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/lock"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/metrics"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/probe"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/schedule"
)

// Status summarizes what happened to one monitor in a pass.
type Status string

const (
	StatusChecked Status = "checked"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusInvalid Status = "invalid"
)

// Skip reasons.
const (
	ReasonDisabled   = "disabled"
	ReasonInProgress = "in_progress"
	ReasonNotFound   = "not_found"
	ReasonCancelled  = "cancelled"
)

type Outcome struct {
	MonitorID  domain.MonitorID     `json:"monitor_id"`
	Status     Status               `json:"status"`
	Verdict    domain.Verdict       `json:"verdict,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	Error      string               `json:"error,omitempty"`
	Check      *domain.Check        `json:"check,omitempty"`
	Transition *incident.Transition `json:"transition,omitempty"`

	Err error `json:"-"`
	// Probed is set once the target was contacted. Callers must not re-run a
	// probed check to recover from a persistence error.
	Probed bool `json:"-"`
}

type Options struct {
	MaxConcurrent int
	// StoreTimeout bounds each persistence call, retries included,
	// independently of the probe.
	StoreTimeout time.Duration
	// StoreAttempts and StoreBackoff drive the retry of a failed write.
	StoreAttempts int
	StoreBackoff  time.Duration
	// LockGrace is added on top of the probe and persistence budget to size
	// the check lease.
	LockGrace    time.Duration
	UptimeWindow time.Duration
	Locker       lock.Locker
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// storeCalls is the number of persistence calls made under one check lease.
const storeCalls = 4

type Engine struct {
	monitors  repo.MonitorStore
	checks    repo.CheckStore
	incidents *incident.Machine
	prober    probe.Prober
	locker    lock.Locker
	sem       *semaphore.Weighted
	metrics   *metrics.Metrics
	log       *zap.Logger

	storeTimeout  time.Duration
	storeAttempts int
	storeBackoff  time.Duration
	lockGrace     time.Duration
	uptimeWindow  time.Duration

	Now func() time.Time
}

func New(monitors repo.MonitorStore, checks repo.CheckStore, incidents *incident.Machine, prober probe.Prober, opts Options) *Engine {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.StoreAttempts < 1 {
		opts.StoreAttempts = 3
	}
	if opts.StoreBackoff <= 0 {
		opts.StoreBackoff = 100 * time.Millisecond
	}
	if opts.LockGrace <= 0 {
		opts.LockGrace = 2 * time.Second
	}
	if opts.UptimeWindow <= 0 {
		opts.UptimeWindow = 24 * time.Hour
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		monitors:      monitors,
		checks:        checks,
		incidents:     incidents,
		prober:        prober,
		locker:        opts.Locker,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		metrics:       opts.Metrics,
		log:           opts.Logger,
		storeTimeout:  opts.StoreTimeout,
		storeAttempts: opts.StoreAttempts,
		storeBackoff:  opts.StoreBackoff,
		lockGrace:     opts.LockGrace,
		uptimeWindow:  opts.UptimeWindow,
		Now:           time.Now,
	}
}

// RunDue checks every enabled monitor whose interval has elapsed. The error is
// non-nil only when the monitor list itself could not be read.
func (e *Engine) RunDue(ctx context.Context) (map[domain.MonitorID]Outcome, error) {
	return e.pass(ctx, "due", func(ms []domain.Monitor) []domain.Monitor {
		return schedule.Due(ms, e.now())
	})
}

// RunAll checks every enabled monitor now, ignoring intervals. Used for the
// manual "run checks now" action.
func (e *Engine) RunAll(ctx context.Context) (map[domain.MonitorID]Outcome, error) {
	return e.pass(ctx, "all", func(ms []domain.Monitor) []domain.Monitor { return ms })
}

func (e *Engine) pass(ctx context.Context, kind string, selectFn func([]domain.Monitor) []domain.Monitor) (map[domain.MonitorID]Outcome, error) {
	start := time.Now()

	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	monitors, err := e.monitors.ListEnabled(sctx)
	cancel()
	if err != nil {
		err = fmt.Errorf("list enabled monitors: %w", err)
		e.metrics.ObservePass(err, time.Since(start))
		return nil, err
	}

	targets := selectFn(monitors)
	out := e.runMany(ctx, targets)

	counts := map[Status]int{}
	for _, o := range out {
		counts[o.Status]++
	}
	e.metrics.ObservePass(nil, time.Since(start))
	e.log.Info("engine_pass_done",
		zap.String("pass", kind),
		zap.Int("enabled", len(monitors)),
		zap.Int("selected", len(targets)),
		zap.Int("checked", counts[StatusChecked]),
		zap.Int("failed", counts[StatusFailed]),
		zap.Int("skipped", counts[StatusSkipped]),
		zap.Int("invalid", counts[StatusInvalid]),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// runMany fans out over the worker pool. Once the pool is full, remaining
// monitors wait for a slot.
func (e *Engine) runMany(ctx context.Context, ms []domain.Monitor) map[domain.MonitorID]Outcome {
	out := make(map[domain.MonitorID]Outcome, len(ms))
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(o Outcome) {
		mu.Lock()
		out[o.MonitorID] = o
		mu.Unlock()
	}

	for _, m := range ms {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			record(skipped(m.ID, ReasonCancelled))
			continue
		}
		wg.Add(1)
		go func(m domain.Monitor) {
			defer wg.Done()
			defer e.sem.Release(1)
			record(e.checkOne(ctx, m))
		}(m)
	}
	wg.Wait()
	return out
}

// CheckMonitor runs the full pipeline for one monitor snapshot, sharing the
// pass worker pool.
func (e *Engine) CheckMonitor(ctx context.Context, m domain.Monitor) Outcome {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return skipped(m.ID, ReasonCancelled)
	}
	defer e.sem.Release(1)
	return e.checkOne(ctx, m)
}

// CheckMonitorByID loads the monitor first. Queue workers use this so a job
// always probes the current configuration.
func (e *Engine) CheckMonitorByID(ctx context.Context, id domain.MonitorID) Outcome {
	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	m, err := e.monitors.FindByID(sctx, id)
	cancel()
	if err != nil {
		return failed(id, fmt.Errorf("find monitor: %w", err))
	}
	if m == nil {
		return skipped(id, ReasonNotFound)
	}
	return e.CheckMonitor(ctx, *m)
}

func (e *Engine) checkOne(ctx context.Context, m domain.Monitor) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("engine_check_panic",
				zap.String("monitor_id", string(m.ID)),
				zap.Any("panic", r),
			)
			o = failed(m.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	if !m.Enabled {
		return skipped(m.ID, ReasonDisabled)
	}

	m = m.WithDefaults()
	if err := m.Validate(); err != nil {
		return e.markInvalid(ctx, m, err)
	}

	lease, err := e.locker.TryAcquire(ctx, string(m.ID), e.leaseTTL(m))
	if errors.Is(err, lock.ErrHeld) {
		e.log.Debug("engine_check_in_progress", zap.String("monitor_id", string(m.ID)))
		e.metrics.ObserveCheck(string(StatusSkipped), "", "", 0)
		return skipped(m.ID, ReasonInProgress)
	}
	if err != nil {
		return e.infraSkip(ctx, m, fmt.Errorf("acquire check lock: %w", err))
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			e.log.Warn("engine_lock_release_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		}
	}()

	return e.execute(ctx, m)
}

// execute probes m and persists the result. Callers hold m's lock.
func (e *Engine) execute(ctx context.Context, m domain.Monitor) Outcome {
	at := e.now().UTC()

	res := e.runProbe(ctx, m)

	// A pass cancelled mid-probe says nothing about the target.
	if ctx.Err() != nil {
		return skipped(m.ID, ReasonCancelled)
	}

	ev := health.Evaluate(res, m)
	check := newCheck(m, res, ev, at)
	o := Outcome{MonitorID: m.ID, Status: StatusChecked, Verdict: ev.Verdict, Reason: ev.Reason, Check: check, Probed: true}

	var errs error
	if err := e.store(ctx, func(sctx context.Context) error { return e.checks.Append(sctx, check) }); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("append check: %w", err))
	}

	uptime := m.UptimePercent
	if err := e.store(ctx, func(sctx context.Context) error {
		u, err := e.checks.Uptime(sctx, m.ID, at.Add(-e.uptimeWindow))
		if err == nil {
			uptime = u
		}
		return err
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("compute uptime: %w", err))
	}

	status := domain.StatusUp
	if ev.Verdict == domain.VerdictDown {
		status = domain.StatusDown
	}
	fields := domain.RuntimeFields{
		LastCheckedAt:  at,
		LastVerdict:    ev.Verdict,
		LastResponseMS: res.ResponseTimeMS,
		UptimePercent:  uptime,
		Status:         status,
	}
	if err := e.store(ctx, func(sctx context.Context) error { return e.monitors.UpdateRuntime(sctx, m.ID, fields) }); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("update runtime: %w", err))
	}

	if e.incidents != nil {
		var tr incident.Transition
		err := e.store(ctx, func(sctx context.Context) error {
			var err error
			tr, err = e.incidents.Apply(sctx, m, ev.Verdict, ev.Reason, at)
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			o.Transition = &tr
			if tr.Action != incident.ActionNone {
				e.metrics.ObserveIncident(string(tr.Action))
			}
		}
	}

	if errs != nil {
		o.Status = StatusFailed
		o.Err = errs
		o.Error = errs.Error()
		e.log.Warn("engine_check_failed",
			zap.String("monitor_id", string(m.ID)),
			zap.String("url", m.URL),
			zap.Error(errs),
		)
	} else {
		e.log.Debug("engine_checked",
			zap.String("monitor_id", string(m.ID)),
			zap.String("url", m.URL),
			zap.String("verdict", string(ev.Verdict)),
			zap.Int("status", res.StatusCode),
			zap.Int64("response_ms", res.ResponseTimeMS),
			zap.String("reason", ev.Reason),
		)
	}
	e.metrics.ObserveCheck(string(o.Status), string(ev.Verdict), string(m.Kind), res.ResponseTimeMS)
	return o
}

// markInvalid surfaces a configuration problem on the monitor instead of
// probing it.
func (e *Engine) markInvalid(ctx context.Context, m domain.Monitor, cause error) Outcome {
	o := Outcome{MonitorID: m.ID, Status: StatusInvalid, Reason: cause.Error()}
	fields := domain.RuntimeFields{
		LastVerdict:    m.LastVerdict,
		LastResponseMS: m.LastResponseMS,
		UptimePercent:  m.UptimePercent,
		Status:         domain.StatusInvalid,
	}
	if m.LastCheckedAt != nil {
		fields.LastCheckedAt = *m.LastCheckedAt
	}
	if err := e.store(ctx, func(sctx context.Context) error { return e.monitors.UpdateRuntime(sctx, m.ID, fields) }); err != nil {
		o.Err = fmt.Errorf("mark invalid: %w", err)
		o.Error = o.Err.Error()
	}
	e.log.Warn("engine_monitor_invalid", zap.String("monitor_id", string(m.ID)), zap.Error(cause))
	e.metrics.ObserveCheck(string(StatusInvalid), "", "", 0)
	return o
}

// infraSkip records a skipped check so history never reads as up while the
// engine could not probe.
func (e *Engine) infraSkip(ctx context.Context, m domain.Monitor, cause error) Outcome {
	check := &domain.Check{
		MonitorID: m.ID,
		CheckedAt: e.now().UTC(),
		Outcome:   domain.OutcomeSkipped,
		Error:     "check skipped: " + cause.Error(),
	}
	if err := e.store(ctx, func(sctx context.Context) error { return e.checks.Append(sctx, check) }); err != nil {
		cause = multierr.Append(cause, fmt.Errorf("record skipped check: %w", err))
		check = nil
	}
	e.log.Warn("engine_check_failed", zap.String("monitor_id", string(m.ID)), zap.Error(cause))
	e.metrics.ObserveCheck(string(StatusFailed), "", "", 0)
	o := failed(m.ID, cause)
	o.Check = check
	return o
}

func (e *Engine) runProbe(ctx context.Context, m domain.Monitor) probe.Result {
	done := e.metrics.TrackInFlight()
	defer done()
	return e.prober.Probe(ctx, m)
}

// leaseTTL covers all of execute at its worst case: the probe plus every
// persistence call at its full budget, incident notification included.
func (e *Engine) leaseTTL(m domain.Monitor) time.Duration {
	ttl := m.Timeout() + storeCalls*e.storeTimeout + e.lockGrace
	if e.incidents != nil {
		ttl += e.incidents.NotifyTimeout
	}
	return ttl
}

// store runs one persistence call, retrying failures with exponential
// backoff. The whole call, retries included, shares one StoreTimeout.
func (e *Engine) store(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	var last error
	b := retry.WithMaxRetries(uint64(e.storeAttempts-1), retry.NewExponential(e.storeBackoff))
	err := retry.Do(sctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			last = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil && last != nil {
		// Report the store's error rather than the deadline that cut retries.
		return last
	}
	return err
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func newCheck(m domain.Monitor, r probe.Result, ev health.Evaluation, at time.Time) *domain.Check {
	c := &domain.Check{
		MonitorID:      m.ID,
		CheckedAt:      at,
		Outcome:        domain.OutcomeSuccess,
		StatusCode:     r.StatusCode,
		ResponseTimeMS: r.ResponseTimeMS,
		Error:          r.Error,
		Verdict:        ev.Verdict,
	}
	if ev.Verdict == domain.VerdictDown {
		c.Outcome = domain.OutcomeFailure
		if c.Error == "" {
			c.Error = ev.Reason
		}
	}
	if r.SSLChecked {
		valid := r.SSLValid
		c.SSLValid = &valid
		if !r.SSLExpiresAt.IsZero() {
			exp := r.SSLExpiresAt
			c.SSLExpiresAt = &exp
		}
	}
	if r.KeywordChecked {
		found := r.KeywordFound
		c.KeywordFound = &found
	}
	return c
}

func skipped(id domain.MonitorID, reason string) Outcome {
	return Outcome{MonitorID: id, Status: StatusSkipped, Reason: reason}
}

func failed(id domain.MonitorID, err error) Outcome {
	return Outcome{MonitorID: id, Status: StatusFailed, Err: err, Error: err.Error()}
}

// Invoke runs one due pass. It lets the engine drive a scheduler loop directly.
func (e *Engine) Invoke(ctx context.Context) error {
	_, err := e.RunDue(ctx)
	return err
}
