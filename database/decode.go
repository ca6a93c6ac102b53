package database

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pocketbase/pocketbase/tools/types"

	"yipfoundation/receipt"
)

var timeType = reflect.TypeOf(time.Time{})

// dateTimeHook lets PocketBase date values land in time.Time fields.
func dateTimeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case types.DateTime:
		return v.Time(), nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		dt, err := types.ParseDateTime(v)
		if err != nil {
			return nil, err
		}
		return dt.Time(), nil
	}
	return data, nil
}

// DecodeDonation maps an exported donations record onto receipt.Donation.
func DecodeDonation(m map[string]any) (*receipt.Donation, error) {
	var d receipt.Donation
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       dateTimeHook,
		Result:           &d,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return nil, fmt.Errorf("decode donation: %w", err)
	}
	if d.CompletedAt != nil && d.CompletedAt.IsZero() {
		d.CompletedAt = nil
	}
	return &d, nil
}
