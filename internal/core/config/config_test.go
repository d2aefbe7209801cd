package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.EarthRadius != 6371000 || cfg.SymbolHalfPx != 8 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PickEvents.Enabled || cfg.Selection.Enabled {
		t.Fatalf("optional sinks must be off by default")
	}
	if cfg.Selection.TTL != 30*time.Minute || cfg.PickEvents.H3Res != 9 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PICK_EARTH_RADIUS", "6378137")
	t.Setenv("PICK_EVENTS_H3_RES", "42")
	t.Setenv("SELECTION_ENABLED", "yes")
	t.Setenv("SELECTION_TTL", "5m")
	t.Setenv("ADDRESS_TABLES", "shops=_IndexData:Shops, banks = bank_idx ,broken,=x")

	cfg := FromEnv()
	if cfg.EarthRadius != 6378137 {
		t.Fatalf("radius=%v", cfg.EarthRadius)
	}
	if cfg.PickEvents.H3Res != 9 {
		t.Fatalf("out of range h3 res must fall back, got %d", cfg.PickEvents.H3Res)
	}
	if !cfg.Selection.Enabled || cfg.Selection.TTL != 5*time.Minute {
		t.Fatalf("selection=%+v", cfg.Selection)
	}
	want := []AddressTable{
		{Layer: "shops", Table: "_IndexData", Caption: "Shops"},
		{Layer: "banks", Table: "bank_idx"},
	}
	if len(cfg.AddressTables) != len(want) {
		t.Fatalf("tables=%+v", cfg.AddressTables)
	}
	for i := range want {
		if cfg.AddressTables[i] != want[i] {
			t.Fatalf("table %d = %+v want %+v", i, cfg.AddressTables[i], want[i])
		}
	}
}

func TestFromEnv_BadRadiusFallsBack(t *testing.T) {
	t.Setenv("PICK_EARTH_RADIUS", "-5")
	if r := FromEnv().EarthRadius; r != 6371000 {
		t.Fatalf("radius=%v", r)
	}
}
