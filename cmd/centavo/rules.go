package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/engine"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage merchant categorization rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesUpdateCmd())
	cmd.AddCommand(rulesDeleteCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in match-precedence order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			rules, err := app.store.ListRules(ctx, tenantID())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATTERN\tCATEGORY\tSUBCATEGORY\tPRIORITY\tCONFIDENCE\tACTIVE")
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%t\n",
					r.ID, r.PatternNorm, r.CategoryName, r.SubcategoryName, r.Priority, r.Confidence, r.Active)
			}
			return w.Flush()
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var (
		subcategoryID int64
		priority      int
		example       string
		inactive      bool
	)

	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Create a rule",
		Long: `Create a user rule mapping a merchant descriptor substring to a
subcategory. Matching uses the normalized form of the pattern, so casing,
accents and punctuation in the argument don't matter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			rule, err := app.resolver.CreateRule(ctx, tenantID(), engine.CreateRuleInput{
				Pattern:           args[0],
				ExampleDescriptor: example,
				SubcategoryID:     subcategoryID,
				Priority:          priority,
				Inactive:          inactive,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created rule %d: %q -> %s / %s\n",
				rule.ID, rule.PatternNorm, rule.CategoryName, rule.SubcategoryName)
			return nil
		},
	}
	cmd.Flags().Int64Var(&subcategoryID, "subcategory", 0, "target subcategory ID (required)")
	cmd.Flags().IntVar(&priority, "priority", 0, "match priority, lower wins (default 100)")
	cmd.Flags().StringVar(&example, "example", "", "example descriptor to record on the rule")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the rule disabled")
	_ = cmd.MarkFlagRequired("subcategory")
	return cmd
}

func rulesUpdateCmd() *cobra.Command {
	var (
		pattern       string
		subcategoryID int64
		priority      int
		active        string
		daysBack      int
		recategorize  bool
	)

	cmd := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Edit a rule, optionally recategorizing history",
		Long: `Edit a rule. Only the flags you pass change; any edit marks the rule
as user-confirmed. When the edit moves the rule to a different
subcategory, pass --recategorize to re-apply it to recent transactions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule ID %q", args[0])
			}

			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			var in engine.UpdateRuleInput
			if cmd.Flags().Changed("pattern") {
				in.Pattern = &pattern
			}
			if cmd.Flags().Changed("subcategory") {
				in.SubcategoryID = &subcategoryID
			}
			if cmd.Flags().Changed("priority") {
				in.Priority = &priority
			}
			if cmd.Flags().Changed("active") {
				enabled, parseErr := strconv.ParseBool(active)
				if parseErr != nil {
					return fmt.Errorf("invalid --active value %q", active)
				}
				in.Active = &enabled
			}

			rule, classificationChanged, err := app.resolver.UpdateRule(ctx, tenantID(), ruleID, in)
			if err != nil {
				return err
			}
			fmt.Printf("Updated rule %d: %q -> %s / %s\n",
				rule.ID, rule.PatternNorm, rule.CategoryName, rule.SubcategoryName)

			if !classificationChanged || !recategorize {
				return nil
			}

			job, err := app.pipeline.Enqueue(ctx, tenantID(), ruleID, daysBack)
			if err != nil {
				return err
			}
			result, err := app.pipeline.Execute(ctx, tenantID(), job.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Recategorization job %d: %s (%d transactions updated)\n",
				job.ID, result.Status, result.UpdatedRows)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "new pattern")
	cmd.Flags().Int64Var(&subcategoryID, "subcategory", 0, "new target subcategory ID")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority")
	cmd.Flags().StringVar(&active, "active", "", "enable or disable the rule (true/false)")
	cmd.Flags().BoolVar(&recategorize, "recategorize", false, "re-apply the rule to recent transactions after the edit")
	cmd.Flags().IntVar(&daysBack, "days-back", 0, "recategorization window in days (default 30)")
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule ID %q", args[0])
			}

			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.resolver.DeleteRule(ctx, tenantID(), ruleID); err != nil {
				if engine.IsNotFound(err) {
					return common.NewUserError(fmt.Sprintf("rule %d does not exist", ruleID), err)
				}
				return err
			}
			fmt.Printf("Deleted rule %d\n", ruleID)
			return nil
		},
	}
}
