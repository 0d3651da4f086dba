// ABOUTME: Tests for typed settings persistence
// ABOUTME: Covers upsert overwrite, kind preservation, delete, and listing order

package store

import (
	"context"
	"errors"
	"testing"
)

func TestSetAndGetSetting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetSetting(ctx, &Setting{Key: "theme", Value: StringValue("dark")}); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	got, err := db.GetSetting(ctx, "theme")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got.Value.Kind != SettingString || got.Value.Str != "dark" {
		t.Errorf("value mismatch: %+v", got.Value)
	}
	if got.Version != 1 {
		t.Errorf("expected default version 1, got %d", got.Version)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestSetSetting_OverwritesValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetSetting(ctx, &Setting{Key: "volume", Value: NumberValue(0.5)}); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := db.SetSetting(ctx, &Setting{Key: "volume", Value: NumberValue(0.9)}); err != nil {
		t.Fatalf("second SetSetting failed: %v", err)
	}

	got, err := db.GetSetting(ctx, "volume")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got.Value.Num != 0.9 {
		t.Errorf("value not overwritten: got %v", got.Value.Num)
	}
}

func TestSetSetting_PreservesKindAcrossTypes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetSetting(ctx, &Setting{Key: "flag", Value: BoolValue(true)}); err != nil {
		t.Fatalf("SetSetting bool failed: %v", err)
	}

	got, err := db.GetSetting(ctx, "flag")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got.Value.Kind != SettingBool || !got.Value.Bool {
		t.Errorf("bool kind lost: %+v", got.Value)
	}
}

func TestGetSetting_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetSetting(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSetting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetSetting(ctx, &Setting{Key: "tmp", Value: StringValue("x")}); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := db.DeleteSetting(ctx, "tmp"); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, err := db.GetSetting(ctx, "tmp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := db.DeleteSetting(ctx, "tmp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestGetAllSettings_OrderedByKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, key := range []string{"zebra", "alpha", "mid"} {
		if err := db.SetSetting(ctx, &Setting{Key: key, Value: StringValue(key)}); err != nil {
			t.Fatalf("SetSetting(%s) failed: %v", key, err)
		}
	}

	settings, err := db.GetAllSettings(ctx)
	if err != nil {
		t.Fatalf("GetAllSettings failed: %v", err)
	}
	if len(settings) != 3 {
		t.Fatalf("expected 3 settings, got %d", len(settings))
	}
	wantOrder := []string{"alpha", "mid", "zebra"}
	for i, want := range wantOrder {
		if settings[i].Key != want {
			t.Errorf("position %d: got %s, want %s", i, settings[i].Key, want)
		}
	}
}
