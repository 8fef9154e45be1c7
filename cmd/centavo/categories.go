package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the category catalog",
	}
	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())
	cmd.AddCommand(subcategoriesAddCmd())
	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories and their subcategories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			cats, err := app.catalog.Categories(ctx, tenantID())
			if err != nil {
				return err
			}
			subs, err := app.catalog.Subcategories(ctx, tenantID())
			if err != nil {
				return err
			}

			byCategory := make(map[int64][]string)
			for _, sub := range subs {
				byCategory[sub.CategoryID] = append(byCategory[sub.CategoryID], sub.Name)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSUBCATEGORIES")
			for _, cat := range cats {
				fmt.Fprintf(w, "%d\t%s %s\t%d\n", cat.ID, cat.Icon, cat.Name, len(byCategory[cat.ID]))
				for _, name := range byCategory[cat.ID] {
					fmt.Fprintf(w, "\t  %s\t\n", name)
				}
			}
			return w.Flush()
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			cat, err := app.catalog.CreateCategory(ctx, tenantID(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created category %q (id %d)\n", cat.Name, cat.ID)
			return nil
		},
	}
}

func subcategoriesAddCmd() *cobra.Command {
	var categoryID int64

	cmd := &cobra.Command{
		Use:   "add-sub <name>",
		Short: "Create a subcategory under a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			sub, err := app.catalog.CreateSubcategory(ctx, tenantID(), categoryID, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created subcategory %q (id %d) under category %d\n", sub.Name, sub.ID, sub.CategoryID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&categoryID, "category", 0, "parent category ID (required)")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
