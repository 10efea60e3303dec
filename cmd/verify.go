package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taxiflow/models"
	"taxiflow/store"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ping every enabled store and print per-table row counts and date bounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		stores, err := store.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if len(stores) == 0 {
			return fmt.Errorf("no database store enabled")
		}
		defer func() {
			for _, s := range stores {
				s.Close()
			}
		}()

		for _, s := range stores {
			if err := verifyStore(ctx, cmd.OutOrStdout(), s); err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
		}
		return nil
	},
}

func verifyStore(ctx context.Context, out io.Writer, s store.Store) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n", s.Name())
	fmt.Fprintln(tw, "TABLE\tROWS\tMIN DATE\tMAX DATE\tDAYS")
	for _, kind := range kinds {
		ok, err := s.TableExists(ctx, kind)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(tw, "%s\tmissing\t\t\t\n", kind.Table())
			continue
		}
		st, err := s.Stats(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n", st.Table, st.Rows, formatDate(st.MinDate), formatDate(st.MaxDate), st.Days)
	}
	return tw.Flush()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(models.DateLayout)
}
