package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dmitrijs2005/gophenroll/internal/app"
	"github.com/dmitrijs2005/gophenroll/internal/importer"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/services"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (g *globalFlags) withStore(cmd *cobra.Command, fn func(ctx context.Context, s *app.Store) error) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	password, err := app.MasterPassword(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	store, err := app.OpenStore(cmd.Context(), cfg, password, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}

// reportSkipped prints per-line parse errors and keeps the good records.
func reportSkipped(w io.Writer, err error) {
	if err == nil {
		return
	}
	var lineErrs interface{ Unwrap() []error }
	if errors.As(err, &lineErrs) {
		for _, e := range lineErrs.Unwrap() {
			fmt.Fprintf(w, "%s %v\n", color.New(color.FgYellow).Sprint("skipped:"), e)
		}
		return
	}
	fmt.Fprintf(w, "%s %v\n", color.New(color.FgYellow).Sprint("skipped:"), err)
}

// ImportAccountsCmd returns the import-accounts command
func ImportAccountsCmd(g *globalFlags) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import-accounts <file|->",
		Short: "Import accounts (email----password[----backup[----otpseed]])",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()

			recs, parseErr := importer.ParseAccounts(in)
			reportSkipped(cmd.ErrOrStderr(), parseErr)
			if len(recs) == 0 {
				return fmt.Errorf("no valid accounts in %s", args[0])
			}

			return g.withStore(cmd, func(ctx context.Context, s *app.Store) error {
				n, err := s.Accounts.Import(ctx, recs, owner)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "private pool owner for these accounts")
	return cmd
}

// ImportCardsCmd returns the import-cards command
func ImportCardsCmd(g *globalFlags) *cobra.Command {
	var opts services.ImportOptions

	cmd := &cobra.Command{
		Use:   "import-cards <file|->",
		Short: "Import payment cards (number month year cvv [| holder | address...])",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()

			cards, parseErr := importer.ParseCards(in)
			reportSkipped(cmd.ErrOrStderr(), parseErr)
			if len(cards) == 0 {
				return fmt.Errorf("no valid cards in %s", args[0])
			}

			return g.withStore(cmd, func(ctx context.Context, s *app.Store) error {
				insts, err := s.Instruments.Import(ctx, cards, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cards into %s pool\n", len(insts), models.PoolFor(opts.Owner))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "private pool owner (public pool when empty)")
	cmd.Flags().IntVar(&opts.MaxUseCount, "max-uses", 1, "uses per card (0 means unlimited)")
	return cmd
}

// AccountsCmd returns the accounts command
func AccountsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List imported accounts with their last recorded status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, s *app.Store) error {
				list, err := s.Accounts.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACCOUNT\tPOOL\tSTATUS\tUPDATED\tMESSAGE")
				for _, a := range list {
					st := "-"
					if a.Status != "" {
						st = colorStatus(a.Status.Report(a.Enhanced))
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Email, models.PoolFor(a.PoolOwner), st, formatTime(a.UpdatedAt), a.LastError)
				}
				return tw.Flush()
			})
		},
	}
}

// InstrumentsCmd returns the instruments command
func InstrumentsCmd(g *globalFlags) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "List payment instruments and their usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key *models.PoolKey
			if cmd.Flags().Changed("owner") {
				k := models.PoolFor(owner)
				key = &k
			}
			return g.withStore(cmd, func(ctx context.Context, s *app.Store) error {
				list, err := s.Instruments.List(ctx, key)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPOOL\tCARD\tUSES\tSTATUS\tEXPIRES")
				for _, i := range list {
					uses := fmt.Sprintf("%d/%d", i.UseCount, i.MaxUseCount)
					if i.MaxUseCount == 0 {
						uses = fmt.Sprintf("%d/-", i.UseCount)
					}
					expires := "-"
					if i.ExpiresAt != nil {
						expires = i.ExpiresAt.UTC().Format("2006-01")
					}
					fmt.Fprintf(tw, "%s\t%s\t*%s\t%s\t%s\t%s\n", i.ID, i.Pool(), i.Last4, uses, i.Status, expires)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only this pool (empty selects the public pool)")
	return cmd
}
