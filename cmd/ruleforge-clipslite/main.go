// Command ruleforge-clipslite is a small CLIPS-like forward-chaining
// interpreter. It is spawned as a subprocess by pkg/engine/clipslite and
// speaks the sentinel-framed REPL protocol defined in pkg/engine/repl
// over its stdin/stdout/stderr: it prints a readiness prompt at startup,
// then evaluates one parenthesized form at a time, honoring printout,
// assert, deffacts, defrule, and run.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ruleforge/ruleforge/pkg/clipslite/interp"
)

func main() {
	in := bufio.NewReader(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	errOut := bufio.NewWriter(os.Stderr)
	defer out.Flush()
	defer errOut.Flush()

	machine := interp.New(out, errOut)
	machine.SetStdin(in)

	fmt.Fprintln(out, "CLIPS-LITE> ready")
	out.Flush()

	for {
		form, err := interp.ReadForm(in)
		if err != nil {
			return
		}
		if form == "" {
			continue
		}
		machine.Eval(form)
		out.Flush()
		errOut.Flush()
	}
}
