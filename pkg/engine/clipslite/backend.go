// Package clipslite implements the forward-chaining EngineBackend: each
// handle is a subprocess running ruleforge-clipslite, framed with the
// sentinel protocol from pkg/engine/repl. Resident memory is sampled via
// gopsutil so the approximate resident bytes reported by Stats reflect
// the subprocess's own footprint rather than the host process's.
package clipslite

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/engine/repl"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// Backend spawns one ruleforge-clipslite subprocess per handle.
type Backend struct {
	binaryPath string
}

// New builds a Backend that spawns the binary at path (resolved via
// exec.LookPath if it is a bare name).
func New(path string) *Backend {
	return &Backend{binaryPath: path}
}

// handle wraps one subprocess and its framer.
type handle struct {
	cmd    *exec.Cmd
	framer *repl.Framer
	stdin  io.WriteCloser
	broken atomic.Bool
}

func (h *handle) Broken() bool   { return h.broken.Load() }
func (h *handle) MarkBroken()    { h.broken.Store(true) }

func (b *Backend) Spawn(ctx context.Context, limits engine.Limits) (engine.Handle, error) {
	cmd := exec.CommandContext(context.Background(), b.binaryPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, rferrors.NewEngineFault("creating stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, rferrors.NewEngineFault("creating stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, rferrors.NewEngineFault("creating stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, rferrors.NewEngineFault("starting clipslite subprocess", err)
	}

	h := &handle{
		cmd:    cmd,
		stdin:  stdin,
		framer: repl.New(repl.DefaultConfig(), stdin, stdout, stderr),
	}

	deadline := time.Now().Add(limits.HandshakeTimeout)
	if err := h.framer.AwaitReady(ctx, deadline); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return h, nil
}

func (b *Backend) Evaluate(ctx context.Context, hdl engine.Handle, script string, deadline time.Time, sink engine.CallbackSink) (engine.EvalResult, error) {
	h, ok := hdl.(*handle)
	if !ok {
		return engine.EvalResult{}, rferrors.NewInternal("clipslite backend given foreign handle type", nil)
	}
	if h.Broken() {
		return engine.EvalResult{}, rferrors.NewEngineFault("handle already broken", nil)
	}

	result, err := h.framer.Eval(ctx, script, deadline, sink)
	if err != nil {
		if rferrors.IsEngineFault(err) || rferrors.IsTimeout(err) {
			h.MarkBroken()
		}
		return engine.EvalResult{}, err
	}
	return result, nil
}

func (b *Backend) Consult(ctx context.Context, hdl engine.Handle, clauses []string, deadline time.Time) (int, error) {
	count := 0
	for _, c := range clauses {
		if _, err := b.Evaluate(ctx, hdl, consultForm(c), deadline, noopSink{}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// consultForm adapts one consulted clause to the interpreter's grammar:
// a clause that is already a top-level defrule/deffacts form is
// evaluated directly, since wrapping it in assert would turn the rule
// definition into a bare "defrule" fact instead of registering it; a
// bare fact literal is wrapped in assert, matching doAssert's expected
// parenthesized-form argument.
func consultForm(clause string) string {
	trimmed := strings.TrimSpace(clause)
	if strings.HasPrefix(trimmed, "(defrule") || strings.HasPrefix(trimmed, "(deffacts") {
		return trimmed
	}
	return fmt.Sprintf("(assert %s)", trimmed)
}

func (b *Backend) Query(ctx context.Context, hdl engine.Handle, goal string, allSolutions bool, deadline time.Time) (engine.QueryResult, error) {
	// The forward-chaining backend has no unification engine; its
	// "query" surface is limited to checking fact presence against the
	// working-memory snapshot a (facts) dump produces.
	res, err := b.Evaluate(ctx, hdl, "(facts)", deadline, noopSink{})
	if err != nil {
		return engine.QueryResult{}, err
	}
	var solutions []map[string]string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" || !strings.Contains(line, goal) {
			continue
		}
		solutions = append(solutions, map[string]string{"match": line})
		if !allSolutions {
			break
		}
	}
	if len(solutions) == 0 {
		return engine.QueryResult{Success: false}, nil
	}
	return engine.QueryResult{Success: true, Solutions: solutions}, nil
}

func (b *Backend) GracefulShutdown(ctx context.Context, hdl engine.Handle, deadline time.Time) error {
	h, ok := hdl.(*handle)
	if !ok {
		return rferrors.NewInternal("clipslite backend given foreign handle type", nil)
	}
	_, _ = h.framer.Eval(ctx, "(exit)", deadline, noopSink{})
	_ = h.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(time.Until(deadline)):
		return b.ForceShutdown(hdl)
	}
}

func (b *Backend) ForceShutdown(hdl engine.Handle) error {
	h, ok := hdl.(*handle)
	if !ok {
		return rferrors.NewInternal("clipslite backend given foreign handle type", nil)
	}
	h.MarkBroken()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	return nil
}

func (b *Backend) HealthProbe(ctx context.Context, hdl engine.Handle) error {
	h, ok := hdl.(*handle)
	if !ok {
		return rferrors.NewInternal("clipslite backend given foreign handle type", nil)
	}
	if h.Broken() {
		return rferrors.NewEngineFault("handle marked broken", nil)
	}
	_, err := b.Evaluate(ctx, hdl, "(printout t \"ping\" crlf)", time.Now().Add(2*time.Second), noopSink{})
	return err
}

func (b *Backend) Stats(hdl engine.Handle) engine.Stats {
	h, ok := hdl.(*handle)
	if !ok || h.cmd.Process == nil {
		return engine.Stats{}
	}
	proc, err := gopsprocess.NewProcess(int32(h.cmd.Process.Pid))
	if err != nil {
		return engine.Stats{}
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return engine.Stats{}
	}
	return engine.Stats{ApproxBytes: int64(mem.RSS)}
}

type noopSink struct{}

func (noopSink) Dispatch(_ context.Context, _ engine.CallbackRequest) engine.CallbackResponse {
	return engine.CallbackResponse{Status: "ok"}
}
