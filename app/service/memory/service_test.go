package memory

import (
	"fmt"
	"path/filepath"
	"testing"

	"envi/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	return &Service{
		cfg: &config.Config{
			Memory: config.Memory{
				Path: filepath.Join(t.TempDir(), "memory.json"),
			},
		},
		bank: newBankFile(),
	}
}

func TestUpdatePreferenceActivitySet(t *testing.T) {
	s := newTestService(t)

	s.UpdatePreference("alice", PreferenceUpdate{Activities: []string{"Hiking"}})
	s.UpdatePreference("alice", PreferenceUpdate{Activities: []string{"swimming", "hiking"}})

	pref := s.Preference("alice")
	require.NotNil(t, pref)
	assert.Equal(t, []string{"hiking", "swimming"}, pref.PreferredActivities)
	assert.NotEmpty(t, pref.LastUpdated)
}

func TestUpdatePreferenceFavoriteDedup(t *testing.T) {
	s := newTestService(t)

	fav := &FavoriteLocation{Name: "Ajusco", Latitude: 19.2, Longitude: -99.25}
	s.UpdatePreference("alice", PreferenceUpdate{FavoriteLocation: fav})
	s.UpdatePreference("alice", PreferenceUpdate{FavoriteLocation: fav})

	pref := s.Preference("alice")
	require.NotNil(t, pref)
	assert.Len(t, pref.FavoriteLocations, 1)
}

func TestUpdatePreferenceWeatherMerge(t *testing.T) {
	s := newTestService(t)

	s.UpdatePreference("alice", PreferenceUpdate{PreferredWeather: map[string]any{"max_temp_c": 25.0}})
	s.UpdatePreference("alice", PreferenceUpdate{PreferredWeather: map[string]any{"max_wind_ms": 8.0}})

	pref := s.Preference("alice")
	require.NotNil(t, pref)
	assert.Equal(t, 25.0, pref.PreferredWeather["max_temp_c"])
	assert.Equal(t, 8.0, pref.PreferredWeather["max_wind_ms"])
}

func TestPreferenceUnknownUser(t *testing.T) {
	s := newTestService(t)

	assert.Nil(t, s.Preference("nobody"))
}

func TestRecordQueryHistoryCap(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < historyCap+20; i++ {
		s.RecordQuery("alice", fmt.Sprintf("place-%d", i), "", nil)
	}

	history := s.History("alice", 0)
	require.Len(t, history, historyCap)

	// newest first, oldest entries trimmed
	assert.Equal(t, fmt.Sprintf("place-%d", historyCap+19), history[0].Location)
	assert.Equal(t, "place-20", history[len(history)-1].Location)
}

func TestRecentLocationsUnique(t *testing.T) {
	s := newTestService(t)

	s.RecordQuery("alice", "Toluca", "", nil)
	s.RecordQuery("alice", "Puebla", "", nil)
	s.RecordQuery("alice", "Toluca", "", nil)

	assert.Equal(t, []string{"Toluca", "Puebla"}, s.RecentLocations("alice", 5))
}

func TestRecordLocationBlendsConditions(t *testing.T) {
	s := newTestService(t)

	s.RecordLocation("Ajusco", 19.2, -99.25, map[string]any{"temperature_c": 10.0}, "")
	s.RecordLocation("Ajusco", 19.2, -99.25, map[string]any{"temperature_c": 20.0}, "bring layers")

	rec := s.Location("Ajusco")
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.QueryCount)
	assert.Equal(t, 15.0, rec.TypicalConditions["temperature_c"])
	assert.Equal(t, "bring layers", rec.Notes)
}

func TestRecordLocationNonNumericOverwrites(t *testing.T) {
	s := newTestService(t)

	s.RecordLocation("Ajusco", 19.2, -99.25, map[string]any{"sky": "clear"}, "")
	s.RecordLocation("Ajusco", 19.2, -99.25, map[string]any{"sky": "overcast"}, "")

	rec := s.Location("Ajusco")
	require.NotNil(t, rec)
	assert.Equal(t, "overcast", rec.TypicalConditions["sky"])
}

func TestRecordLocationEmptyNameIgnored(t *testing.T) {
	s := newTestService(t)

	s.RecordLocation("", 0, 0, nil, "")

	assert.Empty(t, s.FrequentLocations(0))
}

func TestFrequentLocationsOrdering(t *testing.T) {
	s := newTestService(t)

	s.RecordLocation("Once", 1, 1, nil, "")
	for i := 0; i < 3; i++ {
		s.RecordLocation("Thrice", 2, 2, nil, "")
	}

	frequent := s.FrequentLocations(1)
	require.Len(t, frequent, 1)
	assert.Equal(t, "Thrice", frequent[0].Name)
	assert.Equal(t, 3, frequent[0].QueryCount)
}

func TestPersistenceRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	cfg := &config.Config{Memory: config.Memory{Path: path}}

	first := &Service{cfg: cfg, bank: newBankFile()}
	first.UpdatePreference("alice", PreferenceUpdate{
		Activities:    []string{"hiking"},
		RiskTolerance: "low",
	})
	first.RecordQuery("alice", "Toluca", "hiking", map[string]any{"temperature_c": 18.0})
	first.RecordLocation("Toluca", 19.28, -99.65, nil, "")

	second := &Service{cfg: cfg, bank: newBankFile()}
	require.NoError(t, second.load())

	pref := second.Preference("alice")
	require.NotNil(t, pref)
	assert.Equal(t, []string{"hiking"}, pref.PreferredActivities)
	assert.Equal(t, "low", pref.RiskTolerance)

	assert.Len(t, second.History("alice", 0), 1)

	rec := second.Location("Toluca")
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.QueryCount)
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.load())
}

func TestInsights(t *testing.T) {
	s := newTestService(t)

	assert.Equal(t, "No stored information about this user yet.", s.Insights("alice"))

	s.UpdatePreference("alice", PreferenceUpdate{
		Activities:       []string{"hiking"},
		RiskTolerance:    "medium",
		FavoriteLocation: &FavoriteLocation{Name: "Ajusco"},
	})
	s.RecordQuery("alice", "Toluca", "hiking", nil)

	insights := s.Insights("alice")
	assert.Contains(t, insights, "Preferred activities: hiking")
	assert.Contains(t, insights, "Risk tolerance: medium")
	assert.Contains(t, insights, "Favorite locations: Ajusco")
	assert.Contains(t, insights, "Recently queried locations: Toluca")
}
