package settings

import "strings"

// NotificationGate decides whether admin notice emails go out and to whom.
// Both values are read from the provider on every call.
type NotificationGate struct {
	Settings Provider
}

// Enabled reports the emailNotificationsEnabled flag. Unset or unreadable
// values count as enabled.
func (g NotificationGate) Enabled() bool {
	enabled, err := GetBool(g.Settings, KeyEmailNotificationsEnabled, true)
	if err != nil {
		return true
	}
	return enabled
}

// Recipient returns the admin notification address, or "" when unset.
func (g NotificationGate) Recipient() string {
	s, err := GetString(g.Settings, KeyNotificationEmail)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
