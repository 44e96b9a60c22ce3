package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stagelight/fanquest/internal/daemon"
	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/catalog"
)

func init() {
	catalogItemsCmd.Flags().StringVar(&catalogRarity, "rarity", "", "Only items of this rarity")
	catalogSearchCmd.Flags().IntVar(&catalogLimit, "limit", 10, "Maximum results")
	catalogCmd.AddCommand(catalogItemsCmd, catalogSearchCmd, catalogQuestsCmd)
	rootCmd.AddCommand(catalogCmd)
}

var (
	catalogRarity string
	catalogLimit  int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the quest, item and badge catalog",
}

var catalogItemsCmd = &cobra.Command{
	Use:     "items",
	Aliases: []string{"ls"},
	Short:   "List collectible items",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		var items []domain.CollectibleItem
		if catalogRarity != "" {
			r := domain.Rarity(strings.ToLower(catalogRarity))
			if !r.Valid() {
				return fmt.Errorf("unknown rarity %q", catalogRarity)
			}
			items = cat.ItemsByRarity(r, domain.ItemConstraint{})
		} else {
			items = cat.Items()
		}
		return printItems(cmd, items)
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search items by name, member or set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		items := cat.Search(strings.Join(args, " "), catalogLimit)
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matching items.")
			return nil
		}
		return printItems(cmd, items)
	},
}

var catalogQuestsCmd = &cobra.Command{
	Use:   "quests",
	Short: "List quest definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tPERIOD\tGOAL\tREWARD")
		for _, q := range cat.Quests() {
			fmt.Fprintf(w, "%s\t%s\t%s %d\t%s\n", q.Code, q.Period, q.GoalType, q.GoalValue, formatReward(q.Reward))
		}
		return w.Flush()
	},
}

func loadCatalog() (*catalog.Catalog, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return catalog.Load(cfg.Catalog.Path)
}

func printItems(cmd *cobra.Command, items []domain.CollectibleItem) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRARITY\tNAME\tMEMBER\tSET")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Rarity, it.Name, dash(it.Member), dash(it.Set))
	}
	return w.Flush()
}

func formatReward(r domain.RewardSpec) string {
	var parts []string
	if r.Currency > 0 {
		parts = append(parts, fmt.Sprintf("%dc", r.Currency))
	}
	if r.Experience > 0 {
		parts = append(parts, fmt.Sprintf("%dxp", r.Experience))
	}
	if r.CollectibleFloor != "" {
		parts = append(parts, string(r.CollectibleFloor)+"+ card")
	}
	if r.BadgeCode != "" {
		parts = append(parts, "badge "+r.BadgeCode)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
