package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"envi/app/config"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

const historyCap = 100

// Service is the process-wide memory bank: user preferences, query
// history and per-location knowledge, persisted to a single JSON file
// on every mutation. Writes from concurrent conversations serialize on
// the mutex; last writer wins.
type Service struct {
	cfg *config.Config

	mu   sync.Mutex
	bank *bankFile
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	s := &Service{
		cfg:  cfg,
		bank: newBankFile(),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load memory bank: %w", err)
	}

	return s, nil
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.cfg.Memory.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var bank bankFile
	if err = json.Unmarshal(data, &bank); err != nil {
		return fmt.Errorf("failed to parse memory file: %w", err)
	}

	if bank.Preferences == nil {
		bank.Preferences = make(map[string]*Preference)
	}
	if bank.History == nil {
		bank.History = make(map[string][]QueryRecord)
	}
	if bank.Locations == nil {
		bank.Locations = make(map[string]*LocationRecord)
	}

	s.bank = &bank

	slog.Info("Loaded memory bank",
		"users", len(bank.Preferences),
		"locations", len(bank.Locations),
	)

	return nil
}

// save is called with the mutex held.
func (s *Service) save() {
	data, err := json.MarshalIndent(s.bank, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal memory bank", "error", err)
		return
	}

	if dir := filepath.Dir(s.cfg.Memory.Path); dir != "" {
		_ = os.MkdirAll(dir, 0755)
	}

	if err = os.WriteFile(s.cfg.Memory.Path, data, 0644); err != nil {
		slog.Error("Failed to write memory bank", "error", err)
	}
}

// UpdatePreference merges a partial update into a user's preferences.
// Activities accumulate as a set; favorite locations dedup by name;
// preferred weather merges key by key.
func (s *Service) UpdatePreference(userID string, update PreferenceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pref, ok := s.bank.Preferences[userID]
	if !ok {
		pref = &Preference{UserID: userID}
		s.bank.Preferences[userID] = pref
	}

	for _, activity := range update.Activities {
		activity = strings.ToLower(strings.TrimSpace(activity))
		if activity != "" && !pie.Contains(pref.PreferredActivities, activity) {
			pref.PreferredActivities = append(pref.PreferredActivities, activity)
		}
	}

	if update.RiskTolerance != "" {
		pref.RiskTolerance = update.RiskTolerance
	}

	if update.FavoriteLocation != nil && update.FavoriteLocation.Name != "" {
		exists := pie.Any(pref.FavoriteLocations, func(l FavoriteLocation) bool {
			return l.Name == update.FavoriteLocation.Name
		})
		if !exists {
			pref.FavoriteLocations = append(pref.FavoriteLocations, *update.FavoriteLocation)
		}
	}

	if len(update.PreferredWeather) > 0 {
		if pref.PreferredWeather == nil {
			pref.PreferredWeather = make(map[string]any)
		}
		for k, v := range update.PreferredWeather {
			pref.PreferredWeather[k] = v
		}
	}

	pref.LastUpdated = time.Now().Format(time.RFC3339)

	s.save()

	slog.Info("Updated preferences", "user_id", userID)
}

// Preference returns a copy of the user's preferences, or nil.
func (s *Service) Preference(userID string) *Preference {
	s.mu.Lock()
	defer s.mu.Unlock()

	pref, ok := s.bank.Preferences[userID]
	if !ok {
		return nil
	}

	copied := *pref
	return &copied
}

// RecordQuery appends to the user's query history, dropping the oldest
// entries past the cap.
func (s *Service) RecordQuery(userID, location, activity string, conditions map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.bank.History[userID], QueryRecord{
		Timestamp:  time.Now().Format(time.RFC3339),
		Location:   location,
		Activity:   activity,
		Conditions: conditions,
	})

	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}

	s.bank.History[userID] = history

	s.save()
}

// History returns the user's query history, newest first.
func (s *Service) History(userID string, limit int) []QueryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.bank.History[userID]

	out := make([]QueryRecord, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out
}

// RecentLocations returns the most recently queried unique location
// names, newest first.
func (s *Service) RecentLocations(userID string, limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.bank.History[userID]

	seen := make(map[string]bool)
	var out []string

	for i := len(history) - 1; i >= 0; i-- {
		loc := history[i].Location
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out
}

// RecordLocation bumps the location's query counter and blends numeric
// observations into its typical conditions with (old+new)/2. The blend
// is deliberately naive and weighted toward recent values; it mirrors
// how the assistant has always learned and is relied on by prompts.
func (s *Service) RecordLocation(name string, latitude, longitude float64, conditions map[string]any, notes string) {
	if name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bank.Locations[name]
	if !ok {
		rec = &LocationRecord{
			Name: name,
			Coordinates: map[string]float64{
				"latitude":  latitude,
				"longitude": longitude,
			},
		}
		s.bank.Locations[name] = rec
	}

	rec.QueryCount++
	rec.LastQueried = time.Now().Format(time.RFC3339)

	if len(conditions) > 0 {
		if rec.TypicalConditions == nil {
			rec.TypicalConditions = make(map[string]any)
		}
		for key, value := range conditions {
			newVal, newIsNum := asFloat(value)
			oldVal, oldIsNum := asFloat(rec.TypicalConditions[key])
			if newIsNum && oldIsNum {
				rec.TypicalConditions[key] = (oldVal + newVal) / 2
			} else {
				rec.TypicalConditions[key] = value
			}
		}
	}

	if notes != "" {
		rec.Notes = notes
	}

	s.save()
}

// Location returns a copy of the record for a location name, or nil.
func (s *Service) Location(name string) *LocationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bank.Locations[name]
	if !ok {
		return nil
	}

	copied := *rec
	return &copied
}

// FrequentLocations returns the most queried locations, descending.
func (s *Service) FrequentLocations(limit int) []LocationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]LocationRecord, 0, len(s.bank.Locations))
	for _, rec := range s.bank.Locations {
		records = append(records, *rec)
	}

	records = pie.SortUsing(records, func(a, b LocationRecord) bool {
		return a.QueryCount > b.QueryCount
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records
}

// Insights renders what is known about a user as plain text for prompt
// context.
func (s *Service) Insights(userID string) string {
	pref := s.Preference(userID)
	recent := s.RecentLocations(userID, 5)

	var b strings.Builder

	if pref != nil {
		if len(pref.PreferredActivities) > 0 {
			b.WriteString("Preferred activities: " + strings.Join(pref.PreferredActivities, ", ") + "\n")
		}
		if pref.RiskTolerance != "" {
			b.WriteString("Risk tolerance: " + pref.RiskTolerance + "\n")
		}
		if len(pref.FavoriteLocations) > 0 {
			names := pie.Map(pref.FavoriteLocations, func(l FavoriteLocation) string {
				return l.Name
			})
			b.WriteString("Favorite locations: " + strings.Join(names, ", ") + "\n")
		}
	}

	if len(recent) > 0 {
		b.WriteString("Recently queried locations: " + strings.Join(recent, ", ") + "\n")
	}

	if b.Len() == 0 {
		return "No stored information about this user yet."
	}

	return strings.TrimRight(b.String(), "\n")
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
