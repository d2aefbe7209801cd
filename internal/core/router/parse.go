package router

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// MaxZoom bounds the accepted zoom level.
const MaxZoom = 30

type PickRequest struct {
	Lat     float64
	Lng     float64
	Zoom    float64
	Layers  []string
	Session string
	// Append adds a hit to the session selection instead of replacing it.
	Append bool
}

// ParsePickRequest reads lat, lng, z, the comma separated layers list and
// the optional session and append flags.
// Numbers use the invariant format: '.' decimal point, no grouping.
func ParsePickRequest(r *http.Request) (PickRequest, error) {
	q := r.URL.Query()

	lat, err := parseFloat(q.Get("lat"))
	if err != nil {
		return PickRequest{}, fmt.Errorf("invalid parameter lat: %w", err)
	}
	lng, err := parseFloat(q.Get("lng"))
	if err != nil {
		return PickRequest{}, fmt.Errorf("invalid parameter lng: %w", err)
	}
	z, err := parseFloat(q.Get("z"))
	if err != nil {
		return PickRequest{}, fmt.Errorf("invalid parameter z: %w", err)
	}
	// the poles project to infinity
	if lat <= -90 || lat >= 90 {
		return PickRequest{}, errors.New("latitude must be in (-90,90)")
	}
	if lng < -180 || lng > 180 {
		return PickRequest{}, errors.New("longitude must be in [-180,180]")
	}
	if z < 0 || z > MaxZoom {
		return PickRequest{}, fmt.Errorf("zoom must be in [0,%d]", MaxZoom)
	}

	names := splitList(q.Get("layers"))
	if len(names) == 0 {
		return PickRequest{}, errors.New("missing required parameter: layers")
	}

	var appendSel bool
	if v := strings.TrimSpace(q.Get("append")); v != "" {
		if appendSel, err = strconv.ParseBool(v); err != nil {
			return PickRequest{}, fmt.Errorf("invalid parameter append: %q", v)
		}
	}

	return PickRequest{
		Lat:     lat,
		Lng:     lng,
		Zoom:    z,
		Layers:  names,
		Session: strings.TrimSpace(q.Get("session")),
		Append:  appendSel,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("missing value")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", v)
	}
	return f, nil
}

func parseTileIndex(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid tile %s %q", name, v)
	}
	return n, nil
}
