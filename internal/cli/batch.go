package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/control"
	"github.com/spf13/cobra"
)

func startFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("concurrency", "n", 0, "parallel accounts (server default when 0)")
	cmd.Flags().Bool("all", false, "select every imported account")
}

func runStart(g *globalFlags, resume bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		req := control.StartRequest{IDs: args}
		req.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		req.All, _ = cmd.Flags().GetBool("all")
		if !req.All && len(req.IDs) == 0 {
			return errors.New("pass account ids or --all")
		}

		c, err := g.client()
		if err != nil {
			return err
		}
		defer c.Close()

		call := c.StartBatch
		if resume {
			call = c.ResumeBatch
		}
		id, err := call(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started task %s\n", id)
		return nil
	}
}

// StartCmd returns the start command
func StartCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [account-id...]",
		Short: "Start a batch over the given accounts",
		RunE:  runStart(g, false),
	}
	startFlags(cmd)
	return cmd
}

// ResumeCmd returns the resume command
func ResumeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [account-id...]",
		Short: "Re-run the accounts that are not subscribed yet",
		Long: `Resume filters the selected accounts down to those whose last recorded
status is not SUBSCRIBED, then starts a batch over them.`,
		RunE: runStart(g, true),
	}
	startFlags(cmd)
	return cmd
}

// StopCmd returns the stop command
func StopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop a running batch after its in-flight accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.StopBatch(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for task %s\n", args[0])
			return nil
		},
	}
}

// ForgetCmd returns the forget command
func ForgetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <task-id>",
		Short: "Drop a finished batch from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.ForgetBatch(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot task %s\n", args[0])
			return nil
		},
	}
}

// StatusCmd returns the status command
func StatusCmd(g *globalFlags) *cobra.Command {
	var (
		watch time.Duration
		logs  int
	)

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show progress, stats and recent results of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			for {
				snap, err := c.BatchStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printSnapshot(out, snap, logs)
				if watch <= 0 || snap.State.Finished() {
					return nil
				}
				fmt.Fprintln(out)
				if err := sleep(cmd.Context(), watch); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().DurationVarP(&watch, "watch", "w", 0, "poll at this interval until the batch finishes")
	cmd.Flags().IntVar(&logs, "logs", 10, "trailing log lines to show")
	return cmd
}

// QuotaCmd returns the quota command
func QuotaCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the verification service quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			defer c.Close()

			q, err := c.Quota(cmd.Context())
			if err != nil {
				return err
			}
			printQuota(cmd.OutOrStdout(), q)
			return nil
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
