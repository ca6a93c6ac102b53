package notify

import (
	"fmt"

	"github.com/pocketbase/pocketbase/core"
)

const Collection = "admin_notifications"

// Colors understood by the dashboard bell.
const (
	ColorGreen  = "green"
	ColorBlue   = "blue"
	ColorOrange = "orange"
	ColorRed    = "red"
)

// Notification is one entry in the admin notification bell.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Color   string `json:"color"`
	URL     string `json:"url"`
}

// Notifier records admin notifications.
type Notifier interface {
	Notify(n Notification) error
}

func (n Notification) normalize() (Notification, error) {
	if n.Title == "" && n.Message == "" {
		return n, fmt.Errorf("notification needs a title or message")
	}
	switch n.Color {
	case ColorGreen, ColorBlue, ColorOrange, ColorRed:
	default:
		n.Color = ColorBlue
	}
	return n, nil
}

// Store writes notifications to the admin_notifications collection.
type Store struct {
	App core.App
}

func (s Store) Notify(n Notification) error {
	n, err := n.normalize()
	if err != nil {
		return err
	}
	collection, err := s.App.FindCollectionByNameOrId(Collection)
	if err != nil {
		return fmt.Errorf("failed to find collection: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("title", n.Title)
	record.Set("message", n.Message)
	record.Set("color", n.Color)
	record.Set("url", n.URL)
	record.Set("read", false)
	if err := s.App.Save(record); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}
