package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string
	Enabled     bool
	Description string
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// Defaults returns a manager with every ledger flag registered and enabled.
func Defaults() *Manager {
	m := NewManager()
	m.Register(FeatureRulesEnabled, true, "evaluate automation rules after commits")
	m.Register(FeatureReplayCacheEnabled, true, "answer checkout retries from the replay cache")
	m.Register(FeatureCheckinRewards, true, "award XP and NC on guest check-in")
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. A nil manager enables nothing.
func (m *Manager) IsEnabled(name string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}

	return flag.Enabled
}

// Enable enables a feature flag.
func (m *Manager) Enable(name string) {
	m.Set(name, true)
}

// Disable disables a feature flag.
func (m *Manager) Disable(name string) {
	m.Set(name, false)
}

// Set switches a registered flag. Unknown names are ignored.
func (m *Manager) Set(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, exists := m.flags[name]; exists {
		flag.Enabled = enabled
	}
}

// Enabled lists enabled flag names in order.
func (m *Manager) Enabled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, flag := range m.flags {
		if flag.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Predefined feature flag names
const (
	// FeatureRulesEnabled runs automation rules on low stock and check-in
	FeatureRulesEnabled = "rules_enabled"
	// FeatureReplayCacheEnabled serves idempotent retries from the replay cache
	FeatureReplayCacheEnabled = "replay_cache_enabled"
	// FeatureCheckinRewards grants the check-in XP and NC bonus
	FeatureCheckinRewards = "checkin_rewards_enabled"
)
