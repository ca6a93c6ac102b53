package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pocketbase/pocketbase/core"
)

// Collection is the PocketBase collection backing the settings store.
const Collection = "settings"

// RecordProvider reads settings from the PocketBase "settings" collection
// (fields: key text unique, value json).
type RecordProvider struct {
	App core.App
}

func (p RecordProvider) Get(key string) (json.RawMessage, bool, error) {
	record, err := p.App.FindFirstRecordByData(Collection, "key", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find setting %s: %w", key, err)
	}
	raw, err := json.Marshal(record.Get("value"))
	if err != nil {
		return nil, false, fmt.Errorf("encode setting %s: %w", key, err)
	}
	if string(raw) == "null" {
		return nil, false, nil
	}
	return raw, true, nil
}

func (p RecordProvider) Set(key string, value any) error {
	record, err := p.App.FindFirstRecordByData(Collection, "key", key)
	if errors.Is(err, sql.ErrNoRows) {
		collection, cErr := p.App.FindCollectionByNameOrId(Collection)
		if cErr != nil {
			return fmt.Errorf("find collection: %w", cErr)
		}
		record = core.NewRecord(collection)
		record.Set("key", key)
	} else if err != nil {
		return fmt.Errorf("find setting %s: %w", key, err)
	}
	record.Set("value", value)
	if err := p.App.Save(record); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}
