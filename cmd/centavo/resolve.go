package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	var learn bool

	cmd := &cobra.Command{
		Use:   "resolve <descriptor>",
		Short: "Resolve a merchant descriptor to a category",
		Long: `Resolve a raw bank descriptor against the tenant's rules and print the
winning classification. Unmatched descriptors land in the default
"Other" bucket; with --learn an AUTO rule is created for them so the
next occurrence matches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			resolution, err := app.resolver.Resolve(ctx, tenantID(), args[0], learn)
			if err != nil {
				return err
			}

			fmt.Printf("%s / %s\n", resolution.CategoryName, resolution.SubcategoryName)
			if resolution.RuleID != 0 {
				fmt.Printf("rule: %d\n", resolution.RuleID)
			}
			if resolution.CreatedAuto {
				fmt.Println("learned a new auto rule for this merchant")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&learn, "learn", false, "create an AUTO rule when no rule matches")
	return cmd
}
