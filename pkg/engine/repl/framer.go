// Package repl implements the sentinel-framed REPL protocol used by
// stream-based engine backends: a readiness handshake, command
// submission with a trailing sentinel, line-oriented output capture with
// callback interleaving, and desync detection.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// Config names the markers the protocol uses. Both the readiness prompt
// and the sentinel are configurable so they can be chosen to avoid
// collisions with script output.
type Config struct {
	ReadyPrompt     string
	StdoutSentinel  string
	StderrSentinel  string
	SentinelCommand string // command text that prints StdoutSentinel/StderrSentinel
	CallbackPrefix  string // line prefix identifying a callback request
	ReplyPrefix     string // prefix this framer writes for the callback reply
}

// DefaultConfig matches the clipslite subprocess's own conventions.
func DefaultConfig() Config {
	return Config{
		ReadyPrompt:     "CLIPS-LITE>",
		StdoutSentinel:  "__END__",
		StderrSentinel:  "__END__",
		SentinelCommand: "(printout t __END__ crlf)(printout werror __END__ crlf)",
		CallbackPrefix:  "__CALLBACK__ ",
		ReplyPrefix:     "__REPLY__ ",
	}
}

// Framer drives one stream-based engine's stdin/stdout/stderr according
// to the sentinel protocol. It is owned exclusively by the worker for
// the session whose engine it frames.
type Framer struct {
	cfg    Config
	stdin  io.Writer
	stdout *bufio.Reader
	stderr *bufio.Reader
}

// New builds a Framer over an already-spawned process's pipes.
func New(cfg Config, stdin io.Writer, stdout, stderr io.Reader) *Framer {
	return &Framer{
		cfg:    cfg,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		stderr: bufio.NewReader(stderr),
	}
}

// AwaitReady blocks until the readiness prompt appears on stdout, or the
// deadline elapses.
func (f *Framer) AwaitReady(ctx context.Context, deadline time.Time) error {
	lines := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		for {
			line, err := f.stdout.ReadString('\n')
			if err != nil {
				errs <- err
				return
			}
			if strings.Contains(line, f.cfg.ReadyPrompt) {
				lines <- line
				return
			}
		}
	}()

	select {
	case <-lines:
		return nil
	case err := <-errs:
		return rferrors.NewEngineFault("stream closed before readiness prompt", err)
	case <-ctx.Done():
		return rferrors.NewTimeout("handshake cancelled", ctx.Err())
	case <-time.After(time.Until(deadline)):
		return rferrors.NewTimeout("handshake deadline exceeded", nil)
	}
}

// wireCallback is the JSON line a tool-calling engine writes to stdout,
// per the core spec's engine callback wire format.
type wireCallback struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// wireReply is the JSON line this framer writes back to the engine's
// stdin once the callback sink has produced a response.
type wireReply struct {
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// Eval writes script followed by the sentinel command, then reads framed
// output until both sentinels appear, dispatching any callback lines to
// sink. It returns an rferrors Timeout if the deadline passes before both
// sentinels appear, and an EngineFault if a stream ends first or a
// callback line cannot be decoded.
func (f *Framer) Eval(ctx context.Context, script string, deadline time.Time, sink engine.CallbackSink) (engine.EvalResult, error) {
	start := time.Now()

	if _, err := io.WriteString(f.stdin, script+"\n"); err != nil {
		return engine.EvalResult{}, rferrors.NewEngineFault("writing script", err)
	}
	if _, err := io.WriteString(f.stdin, f.cfg.SentinelCommand+"\n"); err != nil {
		return engine.EvalResult{}, rferrors.NewEngineFault("writing sentinel", err)
	}

	stdoutDone := make(chan error, 1)
	stderrDone := make(chan error, 1)
	var stdout, stderr strings.Builder

	go func() {
		for {
			select {
			case <-ctx.Done():
				stdoutDone <- ctx.Err()
				return
			default:
			}

			line, err := f.stdout.ReadString('\n')
			if err != nil {
				stdoutDone <- err
				return
			}

			trimmed := strings.TrimRight(line, "\n")
			if trimmed == f.cfg.StdoutSentinel {
				stdoutDone <- nil
				return
			}
			if strings.HasPrefix(trimmed, f.cfg.CallbackPrefix) {
				payload := strings.TrimPrefix(trimmed, f.cfg.CallbackPrefix)
				req, perr := parseCallback(payload)
				if perr != nil {
					stdoutDone <- rferrors.NewEngineFault("malformed callback line", perr)
					return
				}
				resp := sink.Dispatch(ctx, req)
				reply, merr := formatReply(resp)
				if merr != nil {
					stdoutDone <- rferrors.NewEngineFault("encoding callback reply", merr)
					return
				}
				if _, werr := io.WriteString(f.stdin, f.cfg.ReplyPrefix+reply+"\n"); werr != nil {
					stdoutDone <- rferrors.NewEngineFault("writing callback reply", werr)
					return
				}
				continue
			}
			stdout.WriteString(line)
		}
	}()

	// Stderr is captured concurrently with stdout, per the framer's
	// protocol: a script that writes to both streams must not stall
	// waiting for one marker while the other stream's buffer fills.
	go func() {
		for {
			line, err := f.stderr.ReadString('\n')
			if err != nil {
				stderrDone <- err
				return
			}
			if strings.TrimRight(line, "\n") == f.cfg.StderrSentinel {
				stderrDone <- nil
				return
			}
			stderr.WriteString(line)
		}
	}()

	deadlineTimer := time.NewTimer(time.Until(deadline))
	defer deadlineTimer.Stop()

	if err := waitFor(stdoutDone, deadlineTimer.C); err != nil {
		return engine.EvalResult{}, wrapStreamErr(err, "stdout")
	}
	if err := waitFor(stderrDone, deadlineTimer.C); err != nil {
		return engine.EvalResult{}, wrapStreamErr(err, "stderr")
	}

	return engine.EvalResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitStatus: 0,
		Elapsed:    time.Since(start),
	}, nil
}

func waitFor(done <-chan error, deadline <-chan time.Time) error {
	select {
	case err := <-done:
		return err
	case <-deadline:
		return rferrors.NewTimeout("evaluate deadline exceeded", nil)
	}
}

func wrapStreamErr(err error, stream string) error {
	if rfErr, ok := err.(*rferrors.Error); ok {
		return rfErr
	}
	return rferrors.NewEngineFault("stream desync on "+stream+" before sentinel", err)
}

func parseCallback(payload string) (engine.CallbackRequest, error) {
	var wire wireCallback
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return engine.CallbackRequest{}, err
	}
	return engine.CallbackRequest{Tool: wire.Tool, Arguments: wire.Arguments}, nil
}

func formatReply(resp engine.CallbackResponse) (string, error) {
	wire := wireReply{Status: resp.Status, Result: resp.Result, Message: resp.Message}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
