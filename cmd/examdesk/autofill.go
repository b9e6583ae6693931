package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/exam"
)

var autofillCmd = &cobra.Command{
	Use:   "autofill EXAM_ID BLUEPRINT.json",
	Short: "Preview or apply a blueprint to a draft exam",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		var bp autofill.Blueprint
		if err := json.Unmarshal(raw, &bp); err != nil {
			return fmt.Errorf("blueprint: %w", err)
		}
		mode, _ := cmd.Flags().GetString("mode")
		apply, _ := cmd.Flags().GetBool("apply")
		strict, _ := cmd.Flags().GetBool("strict")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.exams.AutoFill(ctx, args[0], exam.AutoFillRequest{
				Blueprint: bp,
				Mode:      mode,
				Apply:     apply,
				Strict:    strict,
			})
			if err != nil {
				return err
			}
			printAllocation(cmd, res)
			return nil
		})
	},
}

func init() {
	autofillCmd.Flags().String("mode", "replace", "replace or top_up")
	autofillCmd.Flags().Bool("apply", false, "store the selection on the exam")
	autofillCmd.Flags().Bool("strict", false, "refuse to apply when the bank falls short")
}

func printAllocation(cmd *cobra.Command, res exam.AutoFillResult) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tDIFFICULTY\tPICKED\tAVAILABLE")
	for _, c := range res.Allocation.Cells {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", c.Topic, c.Difficulty, c.Count, c.Available)
	}
	tw.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "mode=%s seed=%d allocated=%d/%d shortfall=%d applied=%t\n",
		res.Mode, res.Seed, res.Allocation.Allocated, res.Allocation.Total, res.Allocation.Shortfall, res.Applied)
}
