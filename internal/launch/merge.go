package launch

import (
	"bytes"
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
)

// Filter restricts launches by target, config and preferred membership. A
// nil set matches everything for its dimension.
type Filter struct {
	Targets   []uuid.UUID
	Configs   []string
	Preferred []string
}

// Matches reports whether l passes every set of the filter
func (f Filter) Matches(l models.Launch) bool {
	if f.Targets != nil && !slices.Contains(f.Targets, l.TargetID) {
		return false
	}
	if f.Configs != nil && !slices.Contains(f.Configs, l.LaunchConfig.Name) {
		return false
	}
	if f.Preferred != nil && !slices.Contains(f.Preferred, l.LaunchPreferred.Name) {
		return false
	}
	return true
}

// Match returns the launches that pass f, in input order
func Match(launches []models.Launch, f Filter) []models.Launch {
	matched := make([]models.Launch, 0, len(launches))
	for _, l := range launches {
		if f.Matches(l) {
			matched = append(matched, l)
		}
	}
	return matched
}

// SortByTargetOrder returns a copy of launches ordered from the broadest
// scope (HOST) to the most specific (USER). Equal orders are ordered by
// identity so the result never depends on storage order.
func SortByTargetOrder(launches []models.Launch) []models.Launch {
	sorted := make([]models.Launch, len(launches))
	copy(sorted, launches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	return sorted
}

func less(a, b models.Launch) bool {
	if oa, ob := a.Target.Type.Order(), b.Target.Type.Order(); oa != ob {
		return oa < ob
	}
	if a.Target.Name != b.Target.Name {
		return a.Target.Name < b.Target.Name
	}
	if a.LaunchConfig.Name != b.LaunchConfig.Name {
		return a.LaunchConfig.Name < b.LaunchConfig.Name
	}
	if a.LaunchPreferred.Name != b.LaunchPreferred.Name {
		return a.LaunchPreferred.Name < b.LaunchPreferred.Name
	}
	if c := bytes.Compare(a.TargetID[:], b.TargetID[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.LaunchConfigID[:], b.LaunchConfigID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.LaunchPreferredID[:], b.LaunchPreferredID[:]) < 0
}

// Pair identifies the (config, preferred) slot a launch fills
type Pair struct {
	Config    string `json:"config"`
	Preferred string `json:"preferred"`
}

func pairOf(l models.Launch) Pair {
	return Pair{Config: l.LaunchConfig.Name, Preferred: l.LaunchPreferred.Name}
}

// Entry is the effective selection for one pair
type Entry struct {
	Pair
	Selection  string   `json:"selection"`
	Source     string   `json:"source"`
	SourceType string   `json:"source_type"`
	Overrides  []string `json:"overrides,omitempty"`
}

// Conflict is a pair set to different selections by targets of equal
// precedence. Resolution keeps the identity-ordered last one.
type Conflict struct {
	Pair
	TargetType models.TargetType `json:"target_type"`
	Targets    []string          `json:"targets"`
	Selections []string          `json:"selections"`
	Kept       string            `json:"kept"`
}

// Effective is the merged configuration of a set of launches
type Effective struct {
	entries map[Pair]*Entry
}

// Get returns the entry for a pair
func (e *Effective) Get(config, preferred string) (Entry, bool) {
	entry, ok := e.entries[Pair{Config: config, Preferred: preferred}]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Entries returns the effective entries ordered by pair
func (e *Effective) Entries() []Entry {
	out := make([]Entry, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Config != out[j].Config {
			return out[i].Config < out[j].Config
		}
		return out[i].Preferred < out[j].Preferred
	})
	return out
}

// ByConfig groups the effective selections as config -> preferred -> selection
func (e *Effective) ByConfig() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for pair, entry := range e.entries {
		if out[pair.Config] == nil {
			out[pair.Config] = make(map[string]string)
		}
		out[pair.Config][pair.Preferred] = entry.Selection
	}
	return out
}

// Len returns the number of effective pairs
func (e *Effective) Len() int {
	return len(e.entries)
}

// tier collects the launches of one target order that set the same pair
type tier struct {
	order      int
	targetType models.TargetType
	targets    []string
	selections []string
}

// conflict reports the tier when its launches disagree. The last launch of
// the tier is the one resolution kept.
func (t *tier) conflict(pair Pair) (Conflict, bool) {
	for _, sel := range t.selections[1:] {
		if sel != t.selections[0] {
			return Conflict{
				Pair:       pair,
				TargetType: t.targetType,
				Targets:    t.targets,
				Selections: t.selections,
				Kept:       t.targets[len(t.targets)-1],
			}, true
		}
	}
	return Conflict{}, false
}

// Merge applies launches in order; a later launch overrides an earlier one
// for the same pair. sorted must come from SortByTargetOrder. Conflicts are
// ordered by pair, then by target order.
func Merge(sorted []models.Launch) (*Effective, []Conflict) {
	eff := &Effective{entries: make(map[Pair]*Entry)}
	tiers := make(map[Pair]*tier)
	var out []Conflict

	closeTier := func(pair Pair, t *tier) {
		if c, ok := t.conflict(pair); ok {
			out = append(out, c)
		}
	}

	for _, l := range sorted {
		pair := pairOf(l)
		order := l.Target.Type.Order()

		t, ok := tiers[pair]
		if !ok || t.order != order {
			if ok {
				closeTier(pair, t)
			}
			t = &tier{order: order, targetType: l.Target.Type}
			tiers[pair] = t
		}
		t.targets = append(t.targets, l.Target.Name)
		t.selections = append(t.selections, l.Selection)

		entry := &Entry{
			Pair:       pair,
			Selection:  l.Selection,
			Source:     l.Target.Name,
			SourceType: string(l.Target.Type),
		}
		if prev, seen := eff.entries[pair]; seen {
			entry.Overrides = append(append([]string{}, prev.Overrides...), prev.Source)
		}
		eff.entries[pair] = entry
	}

	for pair, t := range tiers {
		closeTier(pair, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Config != b.Config {
			return a.Config < b.Config
		}
		if a.Preferred != b.Preferred {
			return a.Preferred < b.Preferred
		}
		return a.TargetType.Order() < b.TargetType.Order()
	})
	return eff, out
}

// DuplicateGroup is a set of launches filling the same pair
type DuplicateGroup struct {
	Pair
	Targets    []string `json:"targets"`
	EqualOrder bool     `json:"equal_order"`
}

// FindDuplicates groups launches sharing a (config, preferred) pair,
// regardless of their target. EqualOrder marks groups in which at least two
// launches come from targets of the same precedence.
func FindDuplicates(launches []models.Launch) []DuplicateGroup {
	groups := make(map[Pair][]models.Launch)
	for _, l := range launches {
		pair := pairOf(l)
		groups[pair] = append(groups[pair], l)
	}

	var out []DuplicateGroup
	for pair, members := range groups {
		if len(members) < 2 {
			continue
		}
		members = SortByTargetOrder(members)
		group := DuplicateGroup{Pair: pair}
		seenOrders := make(map[int]bool)
		for _, l := range members {
			group.Targets = append(group.Targets, l.Target.Name)
			order := l.Target.Type.Order()
			if seenOrders[order] {
				group.EqualOrder = true
			}
			seenOrders[order] = true
		}
		out = append(out, group)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Config != out[j].Config {
			return out[i].Config < out[j].Config
		}
		return out[i].Preferred < out[j].Preferred
	})
	return out
}
