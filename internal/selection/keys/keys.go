// Package keys builds the redis keys and hash fields used by the selection store.
package keys

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
)

const maxSessionTextLen = 64

// Session is the hash key holding one session's selection set. The
// readable prefix is truncated, the hash suffix keeps sessions distinct.
func Session(session string) string {
	s := strings.TrimSpace(session)
	safe := sanitize(s)
	if len(safe) > maxSessionTextLen {
		safe = safe[:maxSessionTextLen]
	}
	return fmt.Sprintf("selection:%s:s=%016x", safe, xxhash.Sum64String(s))
}

// Feature identifies a feature inside a selection set: layer name plus a
// digest of its geometry (wkb) and its attributes in key order.
func Feature(layer string, f model.Feature) string {
	d := xxhash.New()
	if f.Geometry != nil {
		if b, err := wkb.Marshal(f.Geometry); err == nil {
			_, _ = d.Write(b)
		}
	}
	names := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(fmt.Sprint(f.Attributes[k]))
		_, _ = d.WriteString("\x00")
	}
	return fmt.Sprintf("%s:f=%016x", sanitize(strings.TrimSpace(layer)), d.Sum64())
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// any other rune (including ':' and non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
