package scheduler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/logger"
	"github.com/ruleforge/ruleforge/pkg/metrics"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// worker is the single goroutine that owns one session's engine handle
// and processes its queue strictly FIFO. No other goroutine may touch
// handle directly; all access to handle is mediated by this worker's
// own run loop, per the core's exclusive-ownership invariant.
type worker struct {
	mu      sync.Mutex
	record  *core.SessionRecord
	backend engine.Backend
	handle  engine.Handle

	queue chan *job
	done  chan struct{}

	evaluating atomic.Bool
	stopped    atomic.Bool

	lastRecovery time.Time

	bridge engine.CallbackSink
}

// job is an internally addressable ScheduledJob: it carries its own
// result sink and cancel signal so the scheduler can report cancellation
// without the worker needing to know about HTTP request contexts.
type job struct {
	id       string
	op       core.JobOp
	script   string
	deadline time.Time
	cancel   chan struct{}
	result   chan core.JobResult
}

func newWorker(record *core.SessionRecord, backend engine.Backend, handle engine.Handle, bridge engine.CallbackSink, queueDepth int) *worker {
	return &worker{
		record:  record,
		backend: backend,
		handle:  handle,
		bridge:  bridge,
		queue:   make(chan *job, queueDepth),
		done:    make(chan struct{}),
	}
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case j := <-w.queue:
			metrics.JobsQueued.Dec()
			w.process(ctx, j)
		}
	}
}

func (w *worker) process(ctx context.Context, j *job) {
	select {
	case <-j.cancel:
		j.result <- core.JobResult{Err: rferrors.NewCancelled("job cancelled before execution", nil)}
		return
	default:
	}

	w.mu.Lock()
	w.record.Status = core.StatusEvaluating
	w.record.Touch()
	w.mu.Unlock()
	w.evaluating.Store(true)

	jobCtx, cancel := context.WithDeadline(ctx, j.deadline)
	defer cancel()

	done := make(chan core.JobResult, 1)
	go func() {
		done <- w.execute(jobCtx, j)
	}()

	var result core.JobResult
	select {
	case result = <-done:
	case <-j.cancel:
		result = core.JobResult{Err: rferrors.NewCancelled("job cancelled during execution", nil)}
		w.handleFault()
	case <-jobCtx.Done():
		result = core.JobResult{Err: rferrors.NewTimeout("evaluate deadline exceeded", nil)}
		w.handleFault()
	}

	w.evaluating.Store(false)
	w.mu.Lock()
	if w.record.Status != core.StatusFailed && w.record.Status != core.StatusTerminated {
		w.record.Status = core.StatusActive
	}
	if result.Err == nil {
		w.record.Usage.Evaluations++
		w.record.Touch()
	}
	w.mu.Unlock()

	if result.Err == nil && !w.handle.Broken() {
		stats := w.backend.Stats(w.handle)
		w.mu.Lock()
		w.record.Usage.Objects = stats.Objects
		w.record.Usage.ApproxBytes = stats.ApproxBytes
		w.mu.Unlock()
	}

	if result.Err != nil {
		metrics.EngineFaultsTotal.Inc()
	} else {
		metrics.EvaluateSeconds.Observe(result.Elapsed.Seconds())
	}

	j.result <- result
}

func (w *worker) execute(ctx context.Context, j *job) core.JobResult {
	switch j.op {
	case core.OpConsult:
		count, err := w.backend.Consult(ctx, w.handle, []string{j.script}, j.deadline)
		if err != nil {
			return core.JobResult{Err: err}
		}
		w.mu.Lock()
		w.record.Usage.Rules += count
		w.mu.Unlock()
		return core.JobResult{ExitStatus: 0}
	case core.OpFact:
		count, err := w.backend.Consult(ctx, w.handle, []string{j.script}, j.deadline)
		if err != nil {
			return core.JobResult{Err: err}
		}
		w.mu.Lock()
		w.record.Usage.Facts += count
		w.mu.Unlock()
		return core.JobResult{ExitStatus: 0}
	case core.OpQuery:
		res, err := w.backend.Query(ctx, w.handle, j.script, true, j.deadline)
		if err != nil {
			return core.JobResult{Err: err}
		}
		if !res.Success {
			return core.JobResult{Stdout: "no solutions"}
		}
		return core.JobResult{Stdout: formatSolutions(res.Solutions)}
	case core.OpRun:
		evalResult, err := w.backend.Evaluate(ctx, w.handle, j.script+"(rules-fired)", j.deadline, w.bridge)
		if err != nil {
			return core.JobResult{Err: err}
		}
		stdout, fired := splitTrailingCount(evalResult.Stdout)
		w.mu.Lock()
		w.record.Usage.RulesFired = fired
		w.mu.Unlock()
		return core.JobResult{
			Stdout:     stdout,
			Stderr:     evalResult.Stderr,
			ExitStatus: evalResult.ExitStatus,
			Elapsed:    evalResult.Elapsed,
		}
	default:
		evalResult, err := w.backend.Evaluate(ctx, w.handle, j.script, j.deadline, w.bridge)
		if err != nil {
			return core.JobResult{Err: err}
		}
		return core.JobResult{
			Stdout:     evalResult.Stdout,
			Stderr:     evalResult.Stderr,
			ExitStatus: evalResult.ExitStatus,
			Elapsed:    evalResult.Elapsed,
		}
	}
}

// splitTrailingCount splits the stdout produced by a "(run ...)
// (rules-fired)" pair into the run's own output and the cumulative
// rules-fired count the trailing command appended as its own line.
func splitTrailingCount(stdout string) (string, int64) {
	trimmed := strings.TrimSuffix(stdout, "\n")
	idx := strings.LastIndex(trimmed, "\n")
	last := trimmed
	rest := ""
	if idx >= 0 {
		last = trimmed[idx+1:]
		rest = trimmed[:idx+1]
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return stdout, 0
	}
	return rest, n
}

func formatSolutions(solutions []map[string]string) string {
	var out string
	for _, s := range solutions {
		for k, v := range s {
			out += k + "=" + v + "\n"
		}
	}
	return out
}

// handleFault marks the handle broken and attempts at most one recovery
// per minute, matching the recovery policy in the core's scheduler
// design: respawn on success, transition to Terminated (failing all
// queued jobs with EngineGone) otherwise.
func (w *worker) handleFault() {
	w.handle.MarkBroken()

	w.mu.Lock()
	w.record.Status = core.StatusFailed
	recoveryDue := time.Since(w.lastRecovery) > time.Minute
	w.mu.Unlock()

	if !recoveryDue {
		w.terminate()
		return
	}

	w.mu.Lock()
	w.lastRecovery = time.Now()
	limits := w.record.Limits
	w.mu.Unlock()

	operation := func() (engine.Handle, error) {
		return w.backend.Spawn(context.Background(), engine.Limits{
			MaxRules:         limits.MaxRules,
			MaxFacts:         limits.MaxFacts,
			MaxBytes:         limits.MaxBytes,
			HandshakeTimeout: limits.DefaultEvalDeadline,
		})
	}

	newHandle, err := backoff.Retry(context.Background(), operation, backoff.WithMaxTries(1))
	if err != nil {
		logger.Warnf("session %s recovery failed: %v", w.record.ID, err)
		w.terminate()
		return
	}

	w.mu.Lock()
	w.handle = newHandle
	w.record.Status = core.StatusActive
	w.record.Usage = core.ResourceUsage{}
	w.mu.Unlock()
}

// shutdownGrace bounds how long terminate waits for a polite engine
// exit before escalating to a kill.
const shutdownGrace = 2 * time.Second

func (w *worker) terminate() {
	if w.stopped.Swap(true) {
		return
	}
	close(w.done)

	w.mu.Lock()
	w.record.Status = core.StatusTerminating
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	if err := w.backend.GracefulShutdown(ctx, w.handle, time.Now().Add(shutdownGrace)); err != nil {
		_ = w.backend.ForceShutdown(w.handle)
	}
	cancel()

	w.mu.Lock()
	w.record.Status = core.StatusTerminated
	w.mu.Unlock()

	drain := true
	for drain {
		select {
		case pending := <-w.queue:
			metrics.JobsQueued.Dec()
			pending.result <- core.JobResult{Err: rferrors.NewEngineGone("session terminated with jobs queued", nil)}
		default:
			drain = false
		}
	}
}
