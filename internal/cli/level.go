package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stagelight/fanquest/internal/daemon"
)

func init() {
	levelCmd.Flags().IntVar(&levelRows, "levels", 20, "Rows to print in the curve table")
	rootCmd.AddCommand(levelCmd)
}

var levelRows int

var levelCmd = &cobra.Command{
	Use:   "level [total-xp]",
	Short: "Show the leveling curve, or the level reached by an XP total",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLevel,
}

func runLevel(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	ec, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	curve := ec.Curve
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		xp, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || xp < 0 {
			return fmt.Errorf("total-xp must be a non-negative integer, got %q", args[0])
		}
		fmt.Fprintln(out, formatLevel(curve.LevelProgress(xp), curve.MaxLevel))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tXP TO NEXT\tTOTAL XP")
	var total int64
	for lvl := 1; lvl <= levelRows; lvl++ {
		if curve.MaxLevel > 0 && lvl >= curve.MaxLevel {
			fmt.Fprintf(w, "%d\t-\t%d\n", lvl, total)
			break
		}
		need := curve.XPForLevel(lvl)
		fmt.Fprintf(w, "%d\t%d\t%d\n", lvl, need, total)
		total += need
	}
	return w.Flush()
}
