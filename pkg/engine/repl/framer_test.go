package repl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

type recordSink struct {
	requests []engine.CallbackRequest
}

func (s *recordSink) Dispatch(_ context.Context, req engine.CallbackRequest) engine.CallbackResponse {
	s.requests = append(s.requests, req)
	return engine.CallbackResponse{Status: "ok", Result: "pong"}
}

func newTestFramer(stdout, stderr string) (*Framer, *bytes.Buffer) {
	var stdin bytes.Buffer
	f := New(DefaultConfig(), &stdin, strings.NewReader(stdout), strings.NewReader(stderr))
	return f, &stdin
}

func TestFramer_AwaitReady(t *testing.T) {
	f, _ := newTestFramer("CLIPS-LITE>\n", "")
	if err := f.AwaitReady(context.Background(), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("AwaitReady() error = %v", err)
	}
}

func TestFramer_AwaitReady_Timeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	f := New(DefaultConfig(), io.Discard, pr, strings.NewReader(""))

	err := f.AwaitReady(context.Background(), time.Now().Add(50*time.Millisecond))
	if !rferrors.IsTimeout(err) {
		t.Errorf("err = %v, want Timeout", err)
	}
}

func TestFramer_Eval_CapturesFramedOutput(t *testing.T) {
	f, stdin := newTestFramer("Hello\n__END__\n", "warn\n__END__\n")

	result, err := f.Eval(context.Background(), `(printout t "Hello" crlf)`, time.Now().Add(time.Second), &recordSink{})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if result.Stdout != "Hello\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "Hello\n")
	}
	if result.Stderr != "warn\n" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "warn\n")
	}
	written := stdin.String()
	if !strings.Contains(written, `(printout t "Hello" crlf)`) {
		t.Errorf("stdin missing script, got %q", written)
	}
	if !strings.Contains(written, DefaultConfig().SentinelCommand) {
		t.Errorf("stdin missing sentinel command, got %q", written)
	}
}

// A line that merely contains the sentinel token must be treated as user
// output; only a line that is exactly the sentinel terminates the frame.
func TestFramer_Eval_SentinelInsideUserOutput(t *testing.T) {
	f, _ := newTestFramer("prefix __END__ suffix\n__END__\n", "__END__\n")

	result, err := f.Eval(context.Background(), "x", time.Now().Add(time.Second), &recordSink{})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if result.Stdout != "prefix __END__ suffix\n" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
}

func TestFramer_Eval_CallbackInterleaving(t *testing.T) {
	stdout := "__CALLBACK__ {\"tool\":\"echo\",\"arguments\":{\"x\":\"1\"}}\nHello\n__END__\n"
	f, stdin := newTestFramer(stdout, "__END__\n")
	sink := &recordSink{}

	result, err := f.Eval(context.Background(), "x", time.Now().Add(time.Second), sink)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if len(sink.requests) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(sink.requests))
	}
	if sink.requests[0].Tool != "echo" {
		t.Errorf("Tool = %q, want echo", sink.requests[0].Tool)
	}
	if sink.requests[0].Arguments["x"] != "1" {
		t.Errorf("Arguments = %v", sink.requests[0].Arguments)
	}
	// the callback line is routed, never appended to stdout
	if result.Stdout != "Hello\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "Hello\n")
	}
	if !strings.Contains(stdin.String(), "__REPLY__ {\"status\":\"ok\",\"result\":\"pong\"}") {
		t.Errorf("reply not written back, stdin = %q", stdin.String())
	}
}

func TestFramer_Eval_MalformedCallbackIsFault(t *testing.T) {
	f, _ := newTestFramer("__CALLBACK__ not-json\n__END__\n", "__END__\n")

	_, err := f.Eval(context.Background(), "x", time.Now().Add(time.Second), &recordSink{})
	if !rferrors.IsEngineFault(err) {
		t.Errorf("err = %v, want EngineFault", err)
	}
}

func TestFramer_Eval_MissingSentinelTimesOut(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	f := New(DefaultConfig(), io.Discard, pr, strings.NewReader("__END__\n"))

	start := time.Now()
	_, err := f.Eval(context.Background(), "spin", time.Now().Add(100*time.Millisecond), &recordSink{})
	if !rferrors.IsTimeout(err) {
		t.Fatalf("err = %v, want Timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timed out after %s, want ~100ms", elapsed)
	}
}

func TestFramer_Eval_TornStreamIsFault(t *testing.T) {
	// stdout closes before the sentinel ever appears
	f, _ := newTestFramer("partial\n", "__END__\n")

	_, err := f.Eval(context.Background(), "x", time.Now().Add(time.Second), &recordSink{})
	if !rferrors.IsEngineFault(err) {
		t.Errorf("err = %v, want EngineFault", err)
	}
}
