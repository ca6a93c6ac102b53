package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Keys stored in the settings collection.
const (
	KeyNotificationEmail         = "notificationEmail"
	KeyEmailNotificationsEnabled = "emailNotificationsEnabled"
	KeyOrganizationConfig        = "organizationConfig"
)

// Provider is the site-wide key/value settings store. Values are JSON.
// Implementations must not cache: every Get reflects the current value.
type Provider interface {
	Get(key string) (json.RawMessage, bool, error)
	Set(key string, value any) error
}

// MemoryProvider keeps settings in a map.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{values: map[string]json.RawMessage{}}
}

func (m *MemoryProvider) Get(key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryProvider) Set(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = b
	m.mu.Unlock()
	return nil
}

// GetString reads a JSON string setting. Absent keys return "".
func GetString(p Provider, key string) (string, error) {
	raw, ok, err := p.Get(key)
	if err != nil || !ok {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decode %s: %w", key, err)
	}
	return s, nil
}

// GetBool reads a JSON boolean setting. Absent keys return def. String
// values "true"/"false" are accepted since the admin form has stored both.
func GetBool(p Provider, key string, def bool) (bool, error) {
	raw, ok, err := p.Get(key)
	if err != nil || !ok || len(raw) == 0 || string(raw) == "null" {
		return def, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return def, fmt.Errorf("decode %s: unexpected value %s", key, raw)
}
