package session

import (
	"sync"

	"envi/app/util/jsonx"
)

// Stage output keys. Once a stage writes its key, downstream consumers
// treat the value as authoritative until the stage runs again.
const (
	KeyUserMessage      = "user_message"
	KeyUserID           = "user_id"
	KeyResolvedLocation = "resolved_location"
	KeySnapshot         = "env_snapshot"
	KeyLocationOptions  = "env_location_options"
	KeyRiskReport       = "env_risk_report"
	KeyAdviceMarkdown   = "env_advice_markdown"

	// bookkeeping, not part of the stage contract
	KeyAdviceRequired = "_advice_required"
	KeyAudit          = "_audit"
)

// State is the mutable key-value bag shared by every stage and checker
// of one conversation. Stage execution is sequential within a turn; the
// lock only guards cross-turn access from concurrent HTTP handlers.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

func New() *State {
	return &State{
		values: make(map[string]any),
	}
}

func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
}

func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return ok && v != nil
}

// GetString returns the value under key if it is a non-empty string.
func (s *State) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}

	str, ok := v.(string)
	if !ok || str == "" {
		return "", false
	}

	return str, true
}

// CoerceJSON normalizes a possibly string-encoded stage output in place.
// Returns false when the value is a string that does not parse as JSON;
// the raw value is left untouched in that case so the caller can treat
// it as a stage failure.
func (s *State) CoerceJSON(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok || v == nil {
		return true
	}

	if _, isStr := v.(string); !isStr {
		return true
	}

	parsed, ok := jsonx.Coerce(v)
	if !ok {
		return false
	}

	s.values[key] = parsed
	return true
}

// Snapshot returns a shallow copy of the whole bag, used for the
// post-pipeline audit record.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}

	return out
}

// ClearPipeline drops the four stage keys so a fresh query reruns the
// full pipeline. Bookkeeping and remembered values survive.
func (s *State) ClearPipeline() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{KeySnapshot, KeyLocationOptions, KeyRiskReport, KeyAdviceMarkdown, KeyAdviceRequired} {
		delete(s.values, key)
	}
}
