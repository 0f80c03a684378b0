package launch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"gotest.tools/v3/assert"
)

func target(name string, typ models.TargetType) models.Target {
	return models.Target{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(typ)+name)), Name: name, Type: typ}
}

func newLaunch(t models.Target, config, preferred, selection string) models.Launch {
	cfg := models.LaunchConfig{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("cfg"+config)), Name: config}
	pref := models.LaunchPreferred{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("pref"+preferred)), Name: preferred}
	return models.Launch{
		TargetID:          t.ID,
		LaunchConfigID:    cfg.ID,
		LaunchPreferredID: pref.ID,
		Selection:         selection,
		Target:            t,
		LaunchConfig:      cfg,
		LaunchPreferred:   pref,
	}
}

var (
	host      = target("ws-042", models.TargetTypeHost)
	radiology = target("radiology", models.TargetTypeHostGroup)
	cardio    = target("cardiology", models.TargetTypeHostGroup)
	alice     = target("alice", models.TargetTypeUser)
)

func targetTypes(launches []models.Launch) []models.TargetType {
	out := make([]models.TargetType, 0, len(launches))
	for _, l := range launches {
		out = append(out, l.Target.Type)
	}
	return out
}

func TestSortByTargetOrder(t *testing.T) {
	input := []models.Launch{
		newLaunch(alice, "weasis", "theme", "dark"),
		newLaunch(host, "weasis", "theme", "light"),
		newLaunch(radiology, "weasis", "theme", "grey"),
	}

	sorted := SortByTargetOrder(input)

	assert.DeepEqual(t, targetTypes(sorted), []models.TargetType{
		models.TargetTypeHost, models.TargetTypeHostGroup, models.TargetTypeUser,
	})
	// input is left untouched
	assert.Equal(t, input[0].Target.Type, models.TargetTypeUser)
}

func TestSortByTargetOrderIgnoresStorageOrder(t *testing.T) {
	a := []models.Launch{
		newLaunch(radiology, "weasis", "theme", "grey"),
		newLaunch(cardio, "weasis", "theme", "blue"),
		newLaunch(host, "weasis", "zoom", "fit"),
	}
	b := []models.Launch{a[2], a[1], a[0]}

	assert.DeepEqual(t, SortByTargetOrder(a), SortByTargetOrder(b))
}

func TestMergeMoreSpecificOverrides(t *testing.T) {
	sorted := SortByTargetOrder([]models.Launch{
		newLaunch(alice, "weasis", "theme", "dark"),
		newLaunch(host, "weasis", "theme", "light"),
		newLaunch(host, "weasis", "zoom", "fit"),
		newLaunch(radiology, "weasis", "theme", "grey"),
	})

	eff, conflicts := Merge(sorted)

	assert.Equal(t, len(conflicts), 0)
	assert.Equal(t, eff.Len(), 2)

	theme, ok := eff.Get("weasis", "theme")
	assert.Assert(t, ok)
	assert.Equal(t, theme.Selection, "dark")
	assert.Equal(t, theme.Source, "alice")
	assert.DeepEqual(t, theme.Overrides, []string{"ws-042", "radiology"})

	zoom, ok := eff.Get("weasis", "zoom")
	assert.Assert(t, ok)
	assert.Equal(t, zoom.Selection, "fit")

	assert.DeepEqual(t, eff.ByConfig(), map[string]map[string]string{
		"weasis": {"theme": "dark", "zoom": "fit"},
	})
}

func TestMergeSurfacesEqualPrecedenceConflicts(t *testing.T) {
	sorted := SortByTargetOrder([]models.Launch{
		newLaunch(radiology, "weasis", "theme", "grey"),
		newLaunch(cardio, "weasis", "theme", "blue"),
	})

	eff, conflicts := Merge(sorted)

	assert.Equal(t, len(conflicts), 1)
	c := conflicts[0]
	assert.Equal(t, c.TargetType, models.TargetTypeHostGroup)
	assert.DeepEqual(t, c.Targets, []string{"cardiology", "radiology"})
	assert.DeepEqual(t, c.Selections, []string{"blue", "grey"})
	assert.Equal(t, c.Kept, "radiology")

	theme, _ := eff.Get("weasis", "theme")
	assert.Equal(t, theme.Selection, "grey")
}

func TestMergeConflictListsWholeTier(t *testing.T) {
	a := target("a-group", models.TargetTypeHostGroup)
	b := target("b-group", models.TargetTypeHostGroup)
	c := target("c-group", models.TargetTypeHostGroup)

	cases := map[string]struct {
		selections []string
		want       Conflict
	}{
		"last differs": {
			selections: []string{"x", "x", "y"},
			want: Conflict{
				Pair:       Pair{Config: "weasis", Preferred: "zoom"},
				TargetType: models.TargetTypeHostGroup,
				Targets:    []string{"a-group", "b-group", "c-group"},
				Selections: []string{"x", "x", "y"},
				Kept:       "c-group",
			},
		},
		"first differs": {
			selections: []string{"x", "y", "y"},
			want: Conflict{
				Pair:       Pair{Config: "weasis", Preferred: "zoom"},
				TargetType: models.TargetTypeHostGroup,
				Targets:    []string{"a-group", "b-group", "c-group"},
				Selections: []string{"x", "y", "y"},
				Kept:       "c-group",
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			// storage order is reversed on purpose
			eff, conflicts := Merge(SortByTargetOrder([]models.Launch{
				newLaunch(c, "weasis", "zoom", tc.selections[2]),
				newLaunch(b, "weasis", "zoom", tc.selections[1]),
				newLaunch(a, "weasis", "zoom", tc.selections[0]),
			}))

			assert.DeepEqual(t, conflicts, []Conflict{tc.want})
			zoom, _ := eff.Get("weasis", "zoom")
			assert.Equal(t, zoom.Source, conflicts[0].Kept)
		})
	}
}

func TestMergeConflictSurvivesHigherOverride(t *testing.T) {
	eff, conflicts := Merge(SortByTargetOrder([]models.Launch{
		newLaunch(alice, "weasis", "theme", "dark"),
		newLaunch(radiology, "weasis", "theme", "grey"),
		newLaunch(cardio, "weasis", "theme", "blue"),
		newLaunch(host, "weasis", "theme", "light"),
	}))

	assert.Equal(t, len(conflicts), 1)
	assert.Equal(t, conflicts[0].TargetType, models.TargetTypeHostGroup)
	assert.DeepEqual(t, conflicts[0].Targets, []string{"cardiology", "radiology"})

	theme, _ := eff.Get("weasis", "theme")
	assert.Equal(t, theme.Selection, "dark")
	assert.DeepEqual(t, theme.Overrides, []string{"ws-042", "cardiology", "radiology"})
}

func TestMergeEqualSelectionsAreNotConflicts(t *testing.T) {
	sorted := SortByTargetOrder([]models.Launch{
		newLaunch(radiology, "weasis", "theme", "grey"),
		newLaunch(cardio, "weasis", "theme", "grey"),
	})

	_, conflicts := Merge(sorted)
	assert.Equal(t, len(conflicts), 0)
}

func TestFindDuplicatesAcrossTargets(t *testing.T) {
	launches := []models.Launch{
		newLaunch(alice, "weasis", "theme", "dark"),
		newLaunch(host, "weasis", "theme", "light"),
		newLaunch(host, "weasis", "zoom", "fit"),
		newLaunch(radiology, "viewer", "layout", "1x2"),
		newLaunch(cardio, "viewer", "layout", "2x2"),
	}

	groups := FindDuplicates(launches)

	assert.DeepEqual(t, groups, []DuplicateGroup{
		{Pair: Pair{Config: "viewer", Preferred: "layout"}, Targets: []string{"cardiology", "radiology"}, EqualOrder: true},
		{Pair: Pair{Config: "weasis", Preferred: "theme"}, Targets: []string{"ws-042", "alice"}, EqualOrder: false},
	})
}

func TestMatch(t *testing.T) {
	launches := []models.Launch{
		newLaunch(alice, "weasis", "theme", "dark"),
		newLaunch(host, "weasis", "zoom", "fit"),
		newLaunch(radiology, "viewer", "layout", "1x2"),
	}

	assert.Equal(t, len(Match(launches, Filter{})), 3)
	assert.Equal(t, len(Match(launches, Filter{Configs: []string{"weasis"}})), 2)
	assert.Equal(t, len(Match(launches, Filter{Targets: []uuid.UUID{host.ID}, Configs: []string{"weasis"}})), 1)
	assert.Equal(t, len(Match(launches, Filter{Preferred: []string{"layout", "theme"}})), 2)
	assert.Equal(t, len(Match(launches, Filter{Targets: []uuid.UUID{}})), 0)
}
