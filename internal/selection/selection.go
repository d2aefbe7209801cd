// Package selection keeps the per-session set of picked features in redis.
// A pick replaces the set with the hit, a miss empties it.
package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/mercator-pick/internal/core/hittest"
	"github.com/mohammed-shakir/mercator-pick/internal/selection/keys"
)

var ErrNoSession = errors.New("selection: session is required")

// Backend is the subset of redisstore.Client the store needs.
type Backend interface {
	ReplaceHash(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error
	AddFields(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error
	GetHash(ctx context.Context, key string) (map[string][]byte, error)
	Del(ctx context.Context, keys ...string) error
}

type Store struct {
	backend   Backend
	ttl       time.Duration
	opTimeout time.Duration
}

func New(b Backend, ttl, opTimeout time.Duration) *Store {
	return &Store{backend: b, ttl: ttl, opTimeout: opTimeout}
}

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout > 0 {
		return context.WithTimeout(parent, s.opTimeout)
	}
	return context.WithCancel(parent)
}

func sessionKey(session string) (string, error) {
	if strings.TrimSpace(session) == "" {
		return "", ErrNoSession
	}
	return keys.Session(session), nil
}

// Replace makes hit the only selected feature of session; nil clears it.
func (s *Store) Replace(ctx context.Context, session string, hit *hittest.Hit) error {
	key, err := sessionKey(session)
	if err != nil {
		return err
	}
	var fields map[string][]byte
	if hit != nil {
		field, val, err := encode(hit)
		if err != nil {
			return err
		}
		fields = map[string][]byte{field: val}
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.backend.ReplaceHash(ctx, key, fields, s.ttl); err != nil {
		return fmt.Errorf("selection: replace %q: %w", session, err)
	}
	return nil
}

// Add extends the selection of session with hit, keeping what is there.
func (s *Store) Add(ctx context.Context, session string, hit *hittest.Hit) error {
	key, err := sessionKey(session)
	if err != nil {
		return err
	}
	if hit == nil {
		return nil
	}
	field, val, err := encode(hit)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.backend.AddFields(ctx, key, map[string][]byte{field: val}, s.ttl); err != nil {
		return fmt.Errorf("selection: add %q: %w", session, err)
	}
	return nil
}

// Get returns the selection of session, ordered by feature key.
func (s *Store) Get(ctx context.Context, session string) (*geojson.FeatureCollection, error) {
	key, err := sessionKey(session)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	raw, err := s.backend.GetHash(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("selection: get %q: %w", session, err)
	}

	fc := geojson.NewFeatureCollection()
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		f, err := geojson.UnmarshalFeature(raw[id])
		if err != nil {
			// stale or foreign entry, skip it
			continue
		}
		f.ID = id
		fc.Append(f)
	}
	return fc, nil
}

func (s *Store) Clear(ctx context.Context, session string) error {
	key, err := sessionKey(session)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.backend.Del(ctx, key); err != nil {
		return fmt.Errorf("selection: clear %q: %w", session, err)
	}
	return nil
}

func encode(hit *hittest.Hit) (string, []byte, error) {
	b, err := json.Marshal(hit.GeoJSON())
	if err != nil {
		return "", nil, fmt.Errorf("selection: encode feature: %w", err)
	}
	return keys.Feature(hit.Layer, hit.Feature), b, nil
}
