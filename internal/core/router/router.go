// Package router holds the http handlers of the pick service.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/mercator-pick/internal/core/hittest"
	"github.com/mohammed-shakir/mercator-pick/internal/core/layers"
	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/core/observability"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
	mylog "github.com/mohammed-shakir/mercator-pick/internal/logger"
	"github.com/mohammed-shakir/mercator-pick/internal/pickevents"
	"github.com/mohammed-shakir/mercator-pick/internal/selection/keys"
)

type Picker interface {
	HitTest(ctx context.Context, catalog layers.Catalog, lat, lon, zoom float64) (*hittest.Hit, error)
	SearchEnvelope(lat, lon, zoom float64) model.Envelope
}

type SelectionStore interface {
	Replace(ctx context.Context, session string, hit *hittest.Hit) error
	Add(ctx context.Context, session string, hit *hittest.Hit) error
	Get(ctx context.Context, session string) (*geojson.FeatureCollection, error)
	Clear(ctx context.Context, session string) error
}

type EventSink interface {
	Publish(ev pickevents.Event) bool
}

// Deps wires the handlers. Selection and Events are optional.
type Deps struct {
	Log       *slog.Logger
	Catalog   layers.Catalog
	Picker    Picker
	Selection SelectionStore
	Events    EventSink
	// TileRadius is the sphere used for tile envelopes.
	TileRadius     float64
	RequestTimeout time.Duration
}

// Instrument records the status and latency of h under route.
func Instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// writeJSON encodes before sending the status, so an unencodable value
// (NaN attributes) becomes a 500 instead of a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandlePick resolves a click to the topmost feature of the requested
// layers. A hit is answered with a GeoJSON feature, a miss with {}.
func HandlePick(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := ParsePickRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ctx := mylog.WithSession(r.Context(), req.Session)
		if d.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
			defer cancel()
		}

		// unknown names are ignored
		requested := d.Catalog.Filter(req.Layers)
		hit, err := d.Picker.HitTest(ctx, requested, req.Lat, req.Lng, req.Zoom)
		if err != nil {
			observability.ObservePick("error", "")
			d.Log.ErrorContext(ctx, "pick failed", "err", err, "lat", req.Lat, "lng", req.Lng, "z", req.Zoom)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		d.updateSelection(ctx, req, hit)

		if hit == nil {
			observability.ObservePick("miss", "")
			d.Log.DebugContext(ctx, "pick miss",
				"lat", req.Lat,
				"lng", req.Lng,
				"z", req.Zoom,
				"box", d.Picker.SearchEnvelope(req.Lat, req.Lng, req.Zoom).String())
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}

		observability.ObservePick("hit", hit.Tier.String())
		ctx = mylog.WithLayer(ctx, hit.Layer)
		d.Log.DebugContext(ctx, "pick hit", "tier", hit.Tier.String(), "z", req.Zoom)
		if d.Events != nil {
			d.Events.Publish(pickevents.Event{
				Layer:      hit.Layer,
				Tier:       hit.Tier.String(),
				FeatureKey: keys.Feature(hit.Layer, hit.Feature),
				Lon:        req.Lng,
				Lat:        req.Lat,
				Zoom:       req.Zoom,
				Session:    req.Session,
			})
		}
		writeJSON(w, http.StatusOK, hit.GeoJSON())
	}
}

// A plain pick replaces the selection, an appending one extends it and
// leaves it alone on a miss. A failing store never fails the pick itself.
func (d Deps) updateSelection(ctx context.Context, req PickRequest, hit *hittest.Hit) {
	if d.Selection == nil || req.Session == "" {
		return
	}
	var err error
	switch {
	case !req.Append:
		err = d.Selection.Replace(ctx, req.Session, hit)
	case hit != nil:
		err = d.Selection.Add(ctx, req.Session, hit)
	}
	if err != nil {
		d.Log.WarnContext(ctx, "selection update failed", "err", err, "append", req.Append)
	}
}

// HandleLayers lists the catalog; layers without a caption show their name.
func HandleLayers(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := make(layers.Catalog, 0, len(d.Catalog))
		for _, l := range d.Catalog {
			l.Caption = l.DisplayName()
			out = append(out, l)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type envelopeJSON struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

func toEnvelopeJSON(e model.Envelope) envelopeJSON {
	return envelopeJSON{MinX: e.MinX, MinY: e.MinY, MaxX: e.MaxX, MaxY: e.MaxY}
}

type tileEnvelopeResponse struct {
	Z          int          `json:"z"`
	X          int          `json:"x"`
	Y          int          `json:"y"`
	Radius     float64      `json:"radius"`
	Mercator   envelopeJSON `json:"mercator"`
	Geographic envelopeJSON `json:"geographic"`
	BBox       string       `json:"bbox"`
}

// HandleTileEnvelope answers /tiles/{z}/{x}/{y}/envelope.
func HandleTileEnvelope(d Deps) http.HandlerFunc {
	radius := d.TileRadius
	if !(radius > 0) {
		radius = projection.WebMercatorRadius
	}
	return func(w http.ResponseWriter, r *http.Request) {
		z, err := parseTileIndex("z", chi.URLParam(r, "z"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		x, err := parseTileIndex("x", chi.URLParam(r, "x"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		y, err := parseTileIndex("y", chi.URLParam(r, "y"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		merc, err := projection.TileEnvelope(x, y, z, radius)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, projection.ErrTileOutOfRange) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		geo := projection.EnvelopeToGeographic(merc, radius)
		writeJSON(w, http.StatusOK, tileEnvelopeResponse{
			Z: z, X: x, Y: y,
			Radius:     radius,
			Mercator:   toEnvelopeJSON(merc),
			Geographic: toEnvelopeJSON(geo),
			BBox:       merc.String(),
		})
	}
}

func (d Deps) selectionSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	if d.Selection == nil {
		writeError(w, http.StatusNotFound, "selection store is disabled")
		return "", false
	}
	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: session")
		return "", false
	}
	return session, true
}

func HandleSelectionGet(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := d.selectionSession(w, r)
		if !ok {
			return
		}
		fc, err := d.Selection.Get(r.Context(), session)
		if err != nil {
			d.Log.ErrorContext(r.Context(), "selection read failed", "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, fc)
	}
}

func HandleSelectionDelete(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := d.selectionSession(w, r)
		if !ok {
			return
		}
		if err := d.Selection.Clear(r.Context(), session); err != nil {
			d.Log.ErrorContext(r.Context(), "selection clear failed", "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
