package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finanzas-dev/centavo/internal/model"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage recategorization jobs",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsEnqueueCmd())
	cmd.AddCommand(jobsRunCmd())
	cmd.AddCommand(jobsRetryCmd())
	cmd.AddCommand(jobsProcessPendingCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recategorization jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			jobs, err := app.store.ListJobs(ctx, tenantID(), model.JobStatus(status), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRULE\tSTATUS\tSINCE\tUPDATED ROWS\tERROR")
			for _, job := range jobs {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n",
					job.ID, job.RuleID, job.Status, job.SinceDate.Format("2006-01-02"),
					job.UpdatedRowCount, job.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING, RUNNING, DONE, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum jobs to list")
	return cmd
}

func jobsEnqueueCmd() *cobra.Command {
	var daysBack int

	cmd := &cobra.Command{
		Use:   "enqueue <rule-id>",
		Short: "Enqueue a recategorization job for a rule",
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

			job, err := app.pipeline.Enqueue(ctx, tenantID(), ruleID, daysBack)
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued job %d for rule %d (since %s)\n",
				job.ID, ruleID, job.SinceDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().IntVar(&daysBack, "days-back", 0, "window in days (default 30)")
	return cmd
}

func jobsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Execute a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job ID %q", args[0])
			}

			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.pipeline.Execute(ctx, tenantID(), jobID)
			if err != nil {
				return err
			}
			printJobResult(jobID, result.Status, result.UpdatedRows, result.Error)
			return nil
		},
	}
}

func jobsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Retry a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job ID %q", args[0])
			}

			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.pipeline.Retry(ctx, tenantID(), jobID)
			if err != nil {
				return err
			}
			printJobResult(jobID, result.Status, result.UpdatedRows, result.Error)
			return nil
		},
	}
}

func jobsProcessPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-pending",
		Short: "Execute every pending job for the tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			results, err := app.pipeline.ProcessPending(ctx, tenantID())
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No pending jobs.")
				return nil
			}
			for _, result := range results {
				fmt.Printf("%s (%d transactions updated)\n", result.Status, result.UpdatedRows)
			}
			return nil
		},
	}
}

func printJobResult(jobID int64, status string, updatedRows int, errMsg string) {
	fmt.Printf("Job %d: %s (%d transactions updated)\n", jobID, status, updatedRows)
	if errMsg != "" {
		fmt.Printf("error: %s\n", errMsg)
	}
}
