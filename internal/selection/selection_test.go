package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/hittest"
	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/selection/keys"
	"github.com/mohammed-shakir/mercator-pick/internal/selection/redisstore"
)

func newStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return New(rc, ttl, time.Second), mr
}

func hit(layer string, id int, p orb.Point) *hittest.Hit {
	return &hittest.Hit{
		Layer:   layer,
		Tier:    model.Foreground,
		Feature: model.Feature{Geometry: p, Attributes: map[string]any{"Id": id}},
	}
}

func TestReplace_KeepsOnlyLatestHit(t *testing.T) {
	s, _ := newStore(t, time.Minute)
	ctx := context.Background()

	if err := s.Replace(ctx, "s1", hit("Wiki", 1, orb.Point{1, 1})); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := s.Replace(ctx, "s1", hit("Wiki", 2, orb.Point{2, 2})); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	fc, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("want 1 feature, got %d", len(fc.Features))
	}
	f := fc.Features[0]
	if f.Properties["layer"] != "Wiki" || f.Properties["Id"] != float64(2) {
		t.Fatalf("properties=%v", f.Properties)
	}
	if !f.Geometry.(orb.Point).Equal(orb.Point{2, 2}) {
		t.Fatalf("geometry=%v", f.Geometry)
	}
	want := keys.Feature("Wiki", hit("Wiki", 2, orb.Point{2, 2}).Feature)
	if f.ID != want {
		t.Fatalf("id=%v want %s", f.ID, want)
	}
}

func TestReplace_MissClearsSelection(t *testing.T) {
	s, mr := newStore(t, time.Minute)
	ctx := context.Background()

	_ = s.Replace(ctx, "s1", hit("Wiki", 1, orb.Point{1, 1}))
	if err := s.Replace(ctx, "s1", nil); err != nil {
		t.Fatalf("Replace(nil): %v", err)
	}
	if mr.Exists(keys.Session("s1")) {
		t.Fatalf("selection key should be removed on miss")
	}
	fc, err := s.Get(ctx, "s1")
	if err != nil || len(fc.Features) != 0 {
		t.Fatalf("fc=%v err=%v", fc, err)
	}
}

func TestAdd_AccumulatesAndSessionsAreIsolated(t *testing.T) {
	s, _ := newStore(t, time.Minute)
	ctx := context.Background()

	_ = s.Replace(ctx, "s1", hit("Wiki", 1, orb.Point{1, 1}))
	_ = s.Add(ctx, "s1", hit("Donuts", 5, orb.Point{3, 3}))
	_ = s.Add(ctx, "s1", hit("Donuts", 5, orb.Point{3, 3}))
	_ = s.Replace(ctx, "s2", hit("Wiki", 9, orb.Point{9, 9}))

	fc, _ := s.Get(ctx, "s1")
	if len(fc.Features) != 2 {
		t.Fatalf("s1 want 2 features (duplicate add collapses), got %d", len(fc.Features))
	}
	fc2, _ := s.Get(ctx, "s2")
	if len(fc2.Features) != 1 {
		t.Fatalf("s2 want 1 feature, got %d", len(fc2.Features))
	}
}

func TestTTL_ExpiresSelection(t *testing.T) {
	s, mr := newStore(t, 2*time.Second)
	ctx := context.Background()

	_ = s.Replace(ctx, "s1", hit("Wiki", 1, orb.Point{1, 1}))
	mr.FastForward(3 * time.Second)

	fc, err := s.Get(ctx, "s1")
	if err != nil || len(fc.Features) != 0 {
		t.Fatalf("expected expired selection, fc=%v err=%v", fc, err)
	}
}

func TestClear(t *testing.T) {
	s, _ := newStore(t, time.Minute)
	ctx := context.Background()

	_ = s.Replace(ctx, "s1", hit("Wiki", 1, orb.Point{1, 1}))
	if err := s.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	fc, _ := s.Get(ctx, "s1")
	if len(fc.Features) != 0 {
		t.Fatalf("want empty selection after clear")
	}
}

func TestSessionRequired(t *testing.T) {
	s, _ := newStore(t, time.Minute)
	ctx := context.Background()

	if err := s.Replace(ctx, " ", nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Replace err=%v", err)
	}
	if _, err := s.Get(ctx, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Get err=%v", err)
	}
	if err := s.Clear(ctx, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Clear err=%v", err)
	}
}

func TestGet_SkipsCorruptEntries(t *testing.T) {
	s, mr := newStore(t, time.Minute)
	ctx := context.Background()

	_ = s.Replace(ctx, "s1", hit("Wiki", 1, orb.Point{1, 1}))
	mr.HSet(keys.Session("s1"), "junk", "not json")

	fc, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("want corrupt entry skipped, got %d features", len(fc.Features))
	}
}

func TestBackendErrorIsWrapped(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	s := New(rc, time.Minute, 200*time.Millisecond)
	mr.Close()

	err = s.Replace(context.Background(), "s1", hit("Wiki", 1, orb.Point{1, 1}))
	if err == nil {
		t.Fatalf("expected error with redis down")
	}
}
