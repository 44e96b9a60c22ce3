package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stagelight/fanquest/internal/daemon"
)

func init() {
	rootCmd.AddCommand(playerCmd)
}

var playerCmd = &cobra.Command{
	Use:   "player <user-id>",
	Short: "Show a player's level, currency, streaks and quests",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlayer,
}

func runPlayer(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := commandContext(cmd)
	user := args[0]
	p, err := d.Engine.Player(ctx, user)
	if err != nil {
		return err
	}
	quests, err := d.Engine.ActiveQuests(ctx, user)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := p.DisplayName
	if name == "" {
		name = p.UserID
	}
	fmt.Fprintf(out, "%s\n", name)
	fmt.Fprintf(out, "  %s\n", formatLevel(p.Level, d.Engine.Curve().MaxLevel))
	fmt.Fprintf(out, "  Currency: %d   Experience: %d\n", p.Currency, p.Experience)
	fmt.Fprintf(out, "  Streaks:  daily %d (best %d), weekly %d\n\n",
		p.Streak.DailyCount, p.Streak.LongestDaily, p.Streak.WeeklyCount)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUEST\tPERIOD\tPROGRESS\tSTATUS")
	for _, q := range quests {
		progress := 0
		if q.Progress != nil {
			progress = q.Progress.Progress
		}
		fmt.Fprintf(w, "%s\t%s\t%d / %d\t%s\n", q.Quest.Code, q.Quest.Period, progress, q.Quest.GoalValue, q.State)
	}
	return w.Flush()
}
