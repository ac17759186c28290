package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/corectx"
)

func rawSchema(s string) json.RawMessage { return json.RawMessage(s) }

type createSessionTool struct{}

func (createSessionTool) Name() string { return "rf_create_session" }
func (createSessionTool) Description() string {
	return "Create a new reasoning session, forward-chaining or backward-chaining"
}
func (createSessionTool) Schema() json.RawMessage {
	return rawSchema(`{"type":"object","properties":{
		"user_id":{"type":"string"},
		"backend":{"type":"string","enum":["forward","backward"]}
	},"required":["user_id","backend"]}`)
}
func (createSessionTool) Execute(ctx context.Context, cc *corectx.CoreContext, args map[string]any) (any, error) {
	typ := core.SessionTypeForward
	if stringArg(args, "backend") == "backward" {
		typ = core.SessionTypeBackward
	}
	rec, err := cc.Scheduler.CreateSession(ctx, stringArg(args, "user_id"), typ, cc.Limits(), cc.EvictionPicker(stringArg(args, "user_id")))
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": string(rec.ID), "status": string(rec.Status)}, nil
}

type evaluateTool struct{}

func (evaluateTool) Name() string        { return "rf_evaluate" }
func (evaluateTool) Description() string { return "Evaluate a script in a forward-chaining session" }
func (evaluateTool) Schema() json.RawMessage {
	return rawSchema(`{"type":"object","properties":{
		"session_id":{"type":"string"},
		"script":{"type":"string"},
		"timeout_ms":{"type":"integer"}
	},"required":["session_id","script"]}`)
}
func (evaluateTool) Execute(ctx context.Context, cc *corectx.CoreContext, args map[string]any) (any, error) {
	id := core.SessionID(stringArg(args, "session_id"))
	timeout := cc.Config.DefaultEvalTimeout
	if ms, ok := args["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	res, err := cc.Scheduler.Submit(ctx, id, core.OpEvaluate, stringArg(args, "script"), timeout)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"stdout":     res.Stdout,
		"stderr":     res.Stderr,
		"exit_code":  res.ExitStatus,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	}, nil
}

type queryTool struct{}

func (queryTool) Name() string        { return "rf_query" }
func (queryTool) Description() string { return "Run a backward-chaining query against a session" }
func (queryTool) Schema() json.RawMessage {
	return rawSchema(`{"type":"object","properties":{
		"session_id":{"type":"string"},
		"goal":{"type":"string"},
		"all_solutions":{"type":"boolean"}
	},"required":["session_id","goal"]}`)
}
func (queryTool) Execute(ctx context.Context, cc *corectx.CoreContext, args map[string]any) (any, error) {
	id := core.SessionID(stringArg(args, "session_id"))
	res, err := cc.Scheduler.Submit(ctx, id, core.OpQuery, stringArg(args, "goal"), cc.Config.DefaultEvalTimeout)
	if err != nil {
		return nil, err
	}
	return map[string]any{"stdout": res.Stdout, "elapsed_ms": res.Elapsed.Milliseconds()}, nil
}

type consultTool struct{}

func (consultTool) Name() string        { return "rf_consult" }
func (consultTool) Description() string { return "Assert Datalog clauses into a backward-chaining session" }
func (consultTool) Schema() json.RawMessage {
	return rawSchema(`{"type":"object","properties":{
		"session_id":{"type":"string"},
		"clauses":{"type":"array","items":{"type":"string"}}
	},"required":["session_id","clauses"]}`)
}
func (consultTool) Execute(ctx context.Context, cc *corectx.CoreContext, args map[string]any) (any, error) {
	id := core.SessionID(stringArg(args, "session_id"))
	raw, _ := args["clauses"].([]any)
	count := 0
	for _, c := range raw {
		clause, ok := c.(string)
		if !ok {
			continue
		}
		if _, err := cc.Scheduler.Submit(ctx, id, core.OpConsult, clause, cc.Config.DefaultEvalTimeout); err != nil {
			return nil, err
		}
		count++
	}
	return map[string]any{"status": "ok", "count": count}, nil
}

type listSessionsTool struct{}

func (listSessionsTool) Name() string        { return "rf_list_sessions" }
func (listSessionsTool) Description() string { return "List every known session" }
func (listSessionsTool) Schema() json.RawMessage {
	return rawSchema(`{"type":"object","properties":{}}`)
}
func (listSessionsTool) Execute(_ context.Context, cc *corectx.CoreContext, _ map[string]any) (any, error) {
	recs := cc.Store.List()
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"session_id": string(rec.ID),
			"user_id":    rec.Owner,
			"type":       string(rec.Type),
			"status":     string(rec.Status),
		})
	}
	return out, nil
}

type terminateSessionTool struct{}

func (terminateSessionTool) Name() string        { return "rf_terminate_session" }
func (terminateSessionTool) Description() string { return "Terminate a session. Idempotent." }
func (terminateSessionTool) Schema() json.RawMessage {
	return rawSchema(`{"type":"object","properties":{"session_id":{"type":"string"}},"required":["session_id"]}`)
}
func (terminateSessionTool) Execute(ctx context.Context, cc *corectx.CoreContext, args map[string]any) (any, error) {
	id := core.SessionID(stringArg(args, "session_id"))
	if err := cc.Scheduler.Terminate(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}
