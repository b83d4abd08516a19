package memory

// FavoriteLocation is a named place a user asked to remember.
type FavoriteLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Preference holds everything remembered about one user.
type Preference struct {
	UserID              string             `json:"user_id"`
	PreferredActivities []string           `json:"preferred_activities,omitempty"`
	RiskTolerance       string             `json:"risk_tolerance,omitempty"`
	FavoriteLocations   []FavoriteLocation `json:"favorite_locations,omitempty"`
	PreferredWeather    map[string]any     `json:"preferred_weather,omitempty"`
	LastUpdated         string             `json:"last_updated,omitempty"`
}

// QueryRecord is one entry of a user's append-only query history.
type QueryRecord struct {
	Timestamp  string         `json:"timestamp"`
	Location   string         `json:"location"`
	Activity   string         `json:"activity,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
	Feedback   string         `json:"feedback,omitempty"`
}

// LocationRecord accumulates knowledge about one queried place.
type LocationRecord struct {
	Name              string             `json:"name"`
	Coordinates       map[string]float64 `json:"coordinates"`
	QueryCount        int                `json:"query_count"`
	LastQueried       string             `json:"last_queried,omitempty"`
	TypicalConditions map[string]any     `json:"typical_conditions,omitempty"`
	Notes             string             `json:"notes,omitempty"`
}

// PreferenceUpdate is the partial update produced by the preference
// extraction agent; zero fields are left untouched.
type PreferenceUpdate struct {
	Activities       []string          `json:"activities,omitempty"`
	RiskTolerance    string            `json:"risk_tolerance,omitempty"`
	FavoriteLocation *FavoriteLocation `json:"favorite_location,omitempty"`
	PreferredWeather map[string]any    `json:"preferred_weather,omitempty"`
}

func (u *PreferenceUpdate) Empty() bool {
	return len(u.Activities) == 0 &&
		u.RiskTolerance == "" &&
		u.FavoriteLocation == nil &&
		len(u.PreferredWeather) == 0
}

// bankFile is the on-disk layout: three maps, rewritten wholesale on
// every mutation.
type bankFile struct {
	Preferences map[string]*Preference     `json:"preferences"`
	History     map[string][]QueryRecord   `json:"history"`
	Locations   map[string]*LocationRecord `json:"locations"`
}

func newBankFile() *bankFile {
	return &bankFile{
		Preferences: make(map[string]*Preference),
		History:     make(map[string][]QueryRecord),
		Locations:   make(map[string]*LocationRecord),
	}
}
