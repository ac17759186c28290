package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	v1 "github.com/ruleforge/ruleforge/pkg/api/v1"
)

// newSessionsCmd builds the "sessions" command group for the
// forward-chaining surface.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage forward-chaining sessions",
	}
	cmd.AddCommand(
		newCreateCmd(false),
		newListCmd(false),
		newGetCmd(false),
		newRmCmd(false),
		newEvaluateCmd(),
		newRulesCmd(),
		newFactsCmd(),
		newRunCmd(),
		newSaveCmd(false),
	)
	return cmd
}

// newDevilsCmd builds the "devils" command group for the
// backward-chaining surface.
func newDevilsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devils",
		Short: "Manage backward-chaining (Datalog) sessions",
	}
	cmd.AddCommand(
		newCreateCmd(true),
		newListCmd(true),
		newGetCmd(true),
		newRmCmd(true),
		newQueryCmd(),
		newConsultCmd(),
		newSaveCmd(true),
	)
	return cmd
}

func newCreateCmd(backward bool) *cobra.Command {
	var userID string
	var preload []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := client().CreateSession(cmd.Context(), backward, v1.CreateSessionRequest{
				UserID:  userID,
				Preload: preload,
			})
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Owning user id (required)")
	cmd.Flags().StringSliceVar(&preload, "preload", nil, "Rules or clauses to load at creation time")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newListCmd(backward bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := client().ListSessions(cmd.Context(), backward)
			if err != nil {
				return err
			}
			return renderSessionsTable(sessions)
		},
	}
}

func newGetCmd(backward bool) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := client().GetSession(cmd.Context(), backward, args[0])
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func newRmCmd(backward bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Terminate a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().TerminateSession(cmd.Context(), backward, args[0]); err != nil {
				return err
			}
			fmt.Printf("terminated %s\n", args[0])
			return nil
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	var timeoutMS int64
	cmd := &cobra.Command{
		Use:   "evaluate <id> <script>",
		Short: "Evaluate a script in a forward-chaining session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Evaluate(cmd.Context(), args[0], v1.EvaluateRequest{
				Script:    args[1],
				TimeoutMS: timeoutMS,
			})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", 0, "Per-call deadline override in milliseconds")
	return cmd
}

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules <id> <rule>...",
		Short: "Load one or more defrule forms into a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, rule := range args[1:] {
				if _, err := client().Evaluate(cmd.Context(), args[0], v1.EvaluateRequest{Script: rule}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newFactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "facts <id> <fact>...",
		Short: "Assert facts into a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, fact := range args[1:] {
				if _, err := client().Evaluate(cmd.Context(), args[0], v1.EvaluateRequest{Script: fact}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run the rule engine to fixpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Evaluate(cmd.Context(), args[0], v1.EvaluateRequest{Script: "(run)"})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func newQueryCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "query <id> <goal>",
		Short: "Run a backward-chaining query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Query(cmd.Context(), args[0], v1.QueryRequest{Goal: args[1], AllSolutions: all})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Send all_solutions=true; the server returns every solution whether or not this is set")
	return cmd
}

func newConsultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consult <id> <clause>...",
		Short: "Assert Datalog clauses into a backward-chaining session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Consult(cmd.Context(), args[0], v1.ConsultRequest{Clauses: args[1:]})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func newSaveCmd(backward bool) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Persist checkpoint metadata for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Save(cmd.Context(), backward, args[0], v1.SaveRequest{Label: label})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Human-readable checkpoint label")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSessionsTable(sessions []v1.SessionSummary) error {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Options(tablewriter.WithHeader([]string{"ID", "User", "Type", "Status", "Rules", "Facts", "Touched"}))

	for _, s := range sessions {
		if err := table.Append([]string{
			s.SessionID,
			s.UserID,
			string(s.Type),
			string(s.Status),
			fmt.Sprintf("%d", s.Resources.Rules),
			fmt.Sprintf("%d", s.Resources.Facts),
			s.Touched.Format("15:04:05"),
		}); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	return table.Render()
}
