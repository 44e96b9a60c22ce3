// Package catalog provides the read-only quest, collectible and badge
// registry. A catalog is loaded from a TOML file, or falls back to the
// built-in set of entries when no file is configured.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sahilm/fuzzy"

	"github.com/stagelight/fanquest/internal/domain"
)

// File is the on-disk shape of a catalog.
type File struct {
	Quests []domain.QuestDefinition `toml:"quests"`
	Items  []domain.CollectibleItem `toml:"items"`
	Badges []domain.BadgeDefinition `toml:"badges"`
}

// Catalog implements domain.Catalog over an immutable entry set.
type Catalog struct {
	quests     map[string]domain.QuestDefinition
	questOrder []string
	items      []domain.CollectibleItem
	badges     map[string]domain.BadgeDefinition
	tierCache  *lru.Cache[string, []domain.CollectibleItem]
}

// cacheSize bounds distinct (tier, constraint) lookups kept in memory.
const cacheSize = 512

// New validates f and builds a catalog. Stream targets without an explicit
// key get their derived key filled in.
func New(f File) (*Catalog, error) {
	cache, err := lru.New[string, []domain.CollectibleItem](cacheSize)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		quests:    make(map[string]domain.QuestDefinition, len(f.Quests)),
		badges:    make(map[string]domain.BadgeDefinition, len(f.Badges)),
		tierCache: cache,
	}

	for _, q := range f.Quests {
		if err := validateQuest(q); err != nil {
			return nil, err
		}
		if _, dup := c.quests[q.Code]; dup {
			return nil, fmt.Errorf("catalog: duplicate quest %q", q.Code)
		}
		targets := make([]domain.StreamTarget, len(q.Targets))
		for i, t := range q.Targets {
			t.Key = t.TargetKey()
			targets[i] = t
		}
		q.Targets = targets
		c.quests[q.Code] = q
		c.questOrder = append(c.questOrder, q.Code)
	}

	seen := make(map[string]bool, len(f.Items))
	for _, it := range f.Items {
		if it.ID == "" || !it.Rarity.Valid() {
			return nil, fmt.Errorf("catalog: item %q needs an id and a known rarity", it.ID)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("catalog: duplicate item %q", it.ID)
		}
		seen[it.ID] = true
		c.items = append(c.items, it)
	}

	for _, b := range f.Badges {
		if b.Code == "" {
			return nil, errors.New("catalog: badge without code")
		}
		c.badges[b.Code] = b
	}
	return c, nil
}

func validateQuest(q domain.QuestDefinition) error {
	if q.Code == "" {
		return errors.New("catalog: quest without code")
	}
	if q.Period != domain.PeriodDaily && q.Period != domain.PeriodWeekly {
		return fmt.Errorf("catalog: quest %q has unknown period %q", q.Code, q.Period)
	}
	if q.GoalValue <= 0 {
		return fmt.Errorf("catalog: quest %q needs a positive goal", q.Code)
	}
	if q.GoalType.Streaming() && len(q.Targets) == 0 {
		return fmt.Errorf("catalog: streaming quest %q has no targets", q.Code)
	}
	if q.Reward.CollectibleFloor != "" && !q.Reward.CollectibleFloor.Valid() {
		return fmt.Errorf("catalog: quest %q has unknown collectible floor %q", q.Code, q.Reward.CollectibleFloor)
	}
	return nil
}

// Load reads a catalog from path. An empty path loads the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(Default())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f)
}

// Quest returns a quest definition by code.
func (c *Catalog) Quest(code string) (domain.QuestDefinition, bool) {
	q, ok := c.quests[code]
	return q, ok
}

// QuestsForPeriod returns the quests of a period in file order.
func (c *Catalog) QuestsForPeriod(p domain.Period) []domain.QuestDefinition {
	var out []domain.QuestDefinition
	for _, code := range c.questOrder {
		if q := c.quests[code]; q.Period == p {
			out = append(out, q)
		}
	}
	return out
}

// Quests returns every quest in file order.
func (c *Catalog) Quests() []domain.QuestDefinition {
	out := make([]domain.QuestDefinition, 0, len(c.questOrder))
	for _, code := range c.questOrder {
		out = append(out, c.quests[code])
	}
	return out
}

// ItemsByRarity returns the items of tier that satisfy con. Results are
// cached per (tier, constraint); callers must not modify the slice.
func (c *Catalog) ItemsByRarity(tier domain.Rarity, con domain.ItemConstraint) []domain.CollectibleItem {
	key := cacheKey(tier, con)
	if items, ok := c.tierCache.Get(key); ok {
		return items
	}
	var items []domain.CollectibleItem
	for _, it := range c.items {
		if it.Rarity == tier && con.Matches(it) {
			items = append(items, it)
		}
	}
	c.tierCache.Add(key, items)
	return items
}

func cacheKey(tier domain.Rarity, con domain.ItemConstraint) string {
	featured := append([]string(nil), con.Featured...)
	sort.Strings(featured)
	return strings.Join([]string{string(tier), con.Member, con.Set, strings.Join(featured, ",")}, "|")
}

// Items returns every item.
func (c *Catalog) Items() []domain.CollectibleItem {
	return append([]domain.CollectibleItem(nil), c.items...)
}

// Badge returns a badge definition by code.
func (c *Catalog) Badge(code string) (domain.BadgeDefinition, bool) {
	b, ok := c.badges[code]
	return b, ok
}

// ─── Search ─────────────────────────────────────────────────────────────────

// searchItems implements fuzzy.Source over item names.
type searchItems []domain.CollectibleItem

func (s searchItems) Len() int { return len(s) }

func (s searchItems) String(i int) string {
	return strings.ToLower(s[i].Name + " " + s[i].Member + " " + s[i].Set)
}

// Search returns items whose name, member or set fuzzily matches query,
// best match first. An empty query returns nothing.
func (c *Catalog) Search(query string, limit int) []domain.CollectibleItem {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	src := searchItems(c.items)
	matches := fuzzy.FindFrom(query, src)

	out := make([]domain.CollectibleItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, src[m.Index])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
