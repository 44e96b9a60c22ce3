package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagelight/fanquest/internal/daemon"
	"github.com/stagelight/fanquest/internal/domain"
)

func init() {
	leaderboardCmd.Flags().StringVar(&lbPeriod, "period", "", "Period key (default: current period)")
	leaderboardCmd.Flags().StringVar(&lbCursor, "cursor", "", "Cursor from a previous page")
	leaderboardCmd.Flags().IntVar(&lbLimit, "limit", 25, "Entries per page")
	leaderboardCmd.AddCommand(leaderboardCloseCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

var (
	lbPeriod string
	lbCursor string
	lbLimit  int
)

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard <daily|weekly|all-time>",
	Aliases: []string{"lb"},
	Short:   "Print a leaderboard page",
	Args:    cobra.ExactArgs(1),
	RunE:    runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	board, ok := domain.ParseBoard(args[0])
	if !ok {
		return fmt.Errorf("unknown board %q", args[0])
	}
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	page, err := d.Engine.LeaderboardPage(commandContext(cmd), board, lbPeriod, lbCursor, lbLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(page.Entries) == 0 {
		fmt.Fprintf(out, "No entries for %s %s.\n", page.Board, page.PeriodKey)
		return nil
	}

	fmt.Fprintf(out, "%s leaderboard, %s\n", page.Board, page.PeriodKey)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tSCORE")
	for _, e := range page.Entries {
		name := e.DisplayName
		if name == "" {
			name = e.UserID
		}
		fmt.Fprintf(w, "%d\t%s\t%d\n", e.Rank, name, e.Score)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.NextCursor != "" {
		fmt.Fprintf(out, "\nNext page: --cursor %s\n", page.NextCursor)
	}
	return nil
}

var leaderboardCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Freeze every finished daily and weekly period now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		n, err := d.ClosePeriods(commandContext(cmd), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Closed %d period(s).\n", n)
		return nil
	},
}
