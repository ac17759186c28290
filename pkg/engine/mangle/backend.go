// Package mangle implements the backward-chaining EngineBackend as an
// in-process github.com/google/mangle Datalog engine pinned to the
// handle's owning worker. Parsing, analysis, and evaluation calls mirror
// the reference mangle-driven MCP server's internal/mangle/engine.go;
// query solutions are resolved by scanning the fact store's GetFacts
// wildcard-match results, the same mechanism the reference engine uses,
// so that predicates derived purely through rule evaluation (never
// consulted as ground facts) are still visible to a query.
package mangle

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	mangleengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// errEnoughSolutions stops a GetFacts scan early once the caller only
// wanted the first solution; it is never surfaced to callers.
var errEnoughSolutions = errors.New("enough solutions")

// Backend spawns an in-process mangle engine per handle.
type Backend struct{}

// New builds a Backend.
func New() *Backend { return &Backend{} }

type clause struct {
	predicate string
	args      []string
}

type handle struct {
	mu          sync.Mutex
	store       factstore.FactStore
	programInfo *analysis.ProgramInfo
	clauses     []clause
	broken      atomic.Bool
	baseHeap    uint64
}

func (h *handle) Broken() bool { return h.broken.Load() }
func (h *handle) MarkBroken()  { h.broken.Store(true) }

func (b *Backend) Spawn(_ context.Context, _ engine.Limits) (engine.Handle, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &handle{
		store:    factstore.NewSimpleInMemoryStore(),
		baseHeap: ms.HeapAlloc,
	}, nil
}

// Evaluate for the backward-chaining backend treats script as a
// single consult+run unit: it is parsed as Datalog source, merged into
// the session's program, and then fully re-evaluated against the fact
// store. There is no callback-bearing output stream for this backend, so
// sink is accepted for interface symmetry but never invoked.
func (b *Backend) Evaluate(_ context.Context, hdl engine.Handle, script string, _ time.Time, _ engine.CallbackSink) (engine.EvalResult, error) {
	start := time.Now()
	h, ok := hdl.(*handle)
	if !ok {
		return engine.EvalResult{}, rferrors.NewInternal("mangle backend given foreign handle type", nil)
	}
	if h.Broken() {
		return engine.EvalResult{}, rferrors.NewEngineFault("handle already broken", nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.mergeProgram(script); err != nil {
		return engine.EvalResult{}, rferrors.NewValidation("parsing clause", err)
	}
	if err := h.evalLocked(); err != nil {
		h.MarkBroken()
		return engine.EvalResult{}, rferrors.NewEngineFault("evaluating program", err)
	}

	return engine.EvalResult{Elapsed: time.Since(start)}, nil
}

func (b *Backend) Consult(_ context.Context, hdl engine.Handle, clauses []string, _ time.Time) (int, error) {
	h, ok := hdl.(*handle)
	if !ok {
		return 0, rferrors.NewInternal("mangle backend given foreign handle type", nil)
	}
	if h.Broken() {
		return 0, rferrors.NewEngineFault("handle already broken", nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, c := range clauses {
		if err := h.mergeProgram(c); err != nil {
			return count, rferrors.NewValidation(fmt.Sprintf("parsing clause %q", c), err)
		}
		count++
	}
	if err := h.evalLocked(); err != nil {
		h.MarkBroken()
		return count, rferrors.NewEngineFault("evaluating program", err)
	}
	return count, nil
}

// Query resolves goal (e.g. "ancestor(tom, Who)") against the handle's
// fact store rather than against the textually-asserted clauses: after
// evalLocked, the store holds every fact derivable from the session's
// rules, not just the ones consulted verbatim, so a query against a
// rule-defined predicate (ancestor derived from parent) sees its
// solutions exactly as a query against a consulted fact would.
func (b *Backend) Query(_ context.Context, hdl engine.Handle, goal string, allSolutions bool, _ time.Time) (engine.QueryResult, error) {
	h, ok := hdl.(*handle)
	if !ok {
		return engine.QueryResult{}, rferrors.NewInternal("mangle backend given foreign handle type", nil)
	}
	if h.Broken() {
		return engine.QueryResult{}, rferrors.NewEngineFault("handle already broken", nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	queryAtom, err := parseQueryAtom(goal)
	if err != nil {
		return engine.QueryResult{}, rferrors.NewValidation("parsing query goal", err)
	}

	var solutions []map[string]string
	scanErr := h.store.GetFacts(queryAtom, func(fact ast.Atom) error {
		solutions = append(solutions, bindVariables(queryAtom, fact))
		if !allSolutions {
			return errEnoughSolutions
		}
		return nil
	})
	if scanErr != nil && !errors.Is(scanErr, errEnoughSolutions) {
		return engine.QueryResult{}, rferrors.NewEngineFault("scanning fact store", scanErr)
	}

	return engine.QueryResult{Success: len(solutions) > 0, Solutions: solutions}, nil
}

// parseQueryAtom parses goal as a fact-shaped clause and returns its head
// atom, which may carry ast.Variable args as wildcards for factstore.Get.
func parseQueryAtom(goal string) (ast.Atom, error) {
	src := strings.TrimSpace(goal)
	if !strings.HasSuffix(src, ".") {
		src += "."
	}
	src = normalizeTerms(src)
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return ast.Atom{}, fmt.Errorf("parse goal: %w", err)
	}
	if len(unit.Clauses) == 0 {
		return ast.Atom{}, fmt.Errorf("no atom in goal %q", goal)
	}
	return unit.Clauses[0].Head, nil
}

// bindVariables binds every ast.Variable position in queryAtom to the
// matching constant in fact, producing the wire-shape solution map.
func bindVariables(queryAtom, fact ast.Atom) map[string]string {
	binding := map[string]string{}
	for i, arg := range queryAtom.Args {
		if i >= len(fact.Args) {
			break
		}
		v, ok := arg.(ast.Variable)
		if !ok {
			continue
		}
		binding[v.Symbol] = constantString(fact.Args[i])
	}
	return binding
}

// constantString renders a mangle base term (expected to be a ground
// ast.Constant once bound from the fact store) as the plain string the
// HTTP wire format uses for query bindings.
func constantString(term ast.BaseTerm) string {
	c, ok := term.(ast.Constant)
	if !ok {
		return term.String()
	}
	switch c.Type {
	case ast.StringType:
		if s, err := c.StringValue(); err == nil {
			return s
		}
	case ast.NumberType:
		if n, err := c.NumberValue(); err == nil {
			return fmt.Sprintf("%d", n)
		}
	case ast.Float64Type:
		if f, err := c.Float64Value(); err == nil {
			return fmt.Sprintf("%g", f)
		}
	}
	return c.String()
}

func (b *Backend) GracefulShutdown(_ context.Context, hdl engine.Handle, _ time.Time) error {
	h, ok := hdl.(*handle)
	if !ok {
		return rferrors.NewInternal("mangle backend given foreign handle type", nil)
	}
	h.MarkBroken()
	return nil
}

func (b *Backend) ForceShutdown(hdl engine.Handle) error {
	h, ok := hdl.(*handle)
	if !ok {
		return rferrors.NewInternal("mangle backend given foreign handle type", nil)
	}
	h.MarkBroken()
	return nil
}

func (b *Backend) HealthProbe(_ context.Context, hdl engine.Handle) error {
	h, ok := hdl.(*handle)
	if !ok {
		return rferrors.NewInternal("mangle backend given foreign handle type", nil)
	}
	if h.Broken() {
		return rferrors.NewEngineFault("handle marked broken", nil)
	}
	return nil
}

func (b *Backend) Stats(hdl engine.Handle) engine.Stats {
	h, ok := hdl.(*handle)
	if !ok {
		return engine.Stats{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	predicates := map[string]bool{}
	for _, c := range h.clauses {
		predicates[c.predicate] = true
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	delta := int64(ms.HeapAlloc) - int64(h.baseHeap)
	if delta < 0 {
		delta = 0
	}
	return engine.Stats{Objects: len(predicates), ApproxBytes: delta}
}

// mergeProgram parses src as a Datalog unit, analyzes it, and folds it
// into h's running program. It also records ground facts in h.clauses,
// whose distinct predicates Stats counts, and adds them to the fact store
// that Query scans.
func (h *handle) mergeProgram(src string) error {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil
	}
	if !strings.HasSuffix(src, ".") {
		src += "."
	}
	src = normalizeTerms(src)

	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	known := make(map[ast.PredicateSym]ast.Decl)
	if h.programInfo != nil {
		for sym, decl := range h.programInfo.Decls {
			if decl != nil {
				known[sym] = *decl
			}
		}
	}
	info, err := analysis.AnalyzeOneUnit(unit, known)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	h.programInfo = mergeProgramInfo(h.programInfo, info)

	for _, decl := range unit.Clauses {
		if pred, args, ok := groundAtomOf(decl); ok {
			h.clauses = append(h.clauses, clause{predicate: pred, args: args})
			atom, aerr := toAtom(pred, args)
			if aerr == nil {
				h.store.Add(atom)
			}
		}
	}
	return nil
}

func (h *handle) evalLocked() error {
	if h.programInfo == nil {
		return nil
	}
	return mangleengine.EvalProgram(h.programInfo, h.store)
}

func mergeProgramInfo(base, next *analysis.ProgramInfo) *analysis.ProgramInfo {
	if base == nil {
		return next
	}
	if next == nil {
		return base
	}
	for name, decl := range next.Decls {
		base.Decls[name] = decl
	}
	base.Rules = append(base.Rules, next.Rules...)
	return base
}

func toAtom(predicate string, args []string) (ast.Atom, error) {
	terms := make([]ast.BaseTerm, 0, len(args))
	for _, a := range args {
		terms = append(terms, toConstant(a))
	}
	return ast.NewAtom(predicate, terms...), nil
}

func toConstant(value string) ast.Constant {
	return ast.String(value)
}

// groundAtomOf extracts a predicate name and its argument strings from a
// single-atom fact clause such as "parent(tom,mary)."; it returns
// ok=false for rule clauses (those with a body) and is deliberately
// textual rather than walking the parsed clause's AST, since a fact's
// wire representation here is already flat key/value text.
func groundAtomOf(raw ast.Clause) (string, []string, bool) {
	text := raw.String()
	if strings.Contains(text, ":-") {
		return "", nil, false
	}
	pred, args, err := parseGoal(strings.TrimSuffix(strings.TrimSpace(text), "."))
	if err != nil {
		return "", nil, false
	}
	// the clause prints string constants quoted; strip so the textual
	// store path adds the same atoms the program evaluation does
	for i, a := range args {
		args[i] = strings.Trim(a, `"`)
	}
	return pred, args, true
}

// normalizeTerms rewrites bare lowercase argument symbols into mangle
// string constants, so the wire clause syntax parent(tom,mary) parses
// even though mangle itself only accepts quoted strings, /names, and
// numbers as constants. Variables (capitalized), numbers, already-quoted
// strings, and predicate or builtin names are left untouched.
func normalizeTerms(src string) string {
	var out strings.Builder
	out.Grow(len(src))
	depth := 0
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out.WriteByte(c)
			if c == '"' {
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case c == '(':
			depth++
			out.WriteByte(c)
		case c == ')':
			depth--
			out.WriteByte(c)
		case depth > 0 && ((c >= 'A' && c <= 'Z') || c == '_'):
			// a variable passes through whole, so its lowercase tail is
			// not taken for a ground symbol
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			out.WriteString(src[i:j])
			i = j - 1
		case depth > 0 && c >= 'a' && c <= 'z':
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			tok := src[i:j]
			k := j
			for k < len(src) && src[k] == ' ' {
				k++
			}
			// a token directly followed by '(' or ':' is a nested
			// predicate or an fn: builtin, not a ground argument
			if k < len(src) && (src[k] == '(' || src[k] == ':') {
				out.WriteString(tok)
			} else {
				out.WriteByte('"')
				out.WriteString(tok)
				out.WriteByte('"')
			}
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func parseGoal(goal string) (string, []string, error) {
	goal = strings.TrimSpace(goal)
	open := strings.IndexByte(goal, '(')
	close := strings.LastIndexByte(goal, ')')
	if open < 0 || close < 0 || close < open {
		return "", nil, fmt.Errorf("malformed atom %q", goal)
	}
	pred := strings.TrimSpace(goal[:open])
	argStr := goal[open+1 : close]
	var args []string
	for _, a := range strings.Split(argStr, ",") {
		args = append(args, strings.TrimSpace(a))
	}
	if pred == "" {
		return "", nil, fmt.Errorf("missing predicate in %q", goal)
	}
	return pred, args, nil
}

// unify attempts to bind the goal's variable arguments (conventionally
// capitalized, matching the wire goal syntax in the core spec's example
// scenarios) against a stored clause's ground arguments.
func unify(goalArgs, factArgs []string) (map[string]string, bool) {
	binding := map[string]string{}
	for i, g := range goalArgs {
		if isVariable(g) {
			binding[g] = factArgs[i]
			continue
		}
		if g != factArgs[i] {
			return nil, false
		}
	}
	return binding, true
}

func isVariable(term string) bool {
	return term != "" && term[0] >= 'A' && term[0] <= 'Z'
}
