package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/mohammed-shakir/mercator-pick/internal/core/hittest"
	"github.com/mohammed-shakir/mercator-pick/internal/core/layers"
	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
	"github.com/mohammed-shakir/mercator-pick/internal/pickevents"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/memory"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func sampleCatalog() layers.Catalog {
	pois := memory.New(model.Feature{
		Geometry:   orb.Point{8.4037, 49.0069},
		Attributes: map[string]any{"Id": 0, "Name": "Karlsruhe"},
	})
	areas := memory.New(model.Feature{
		Geometry:   square(0, 40, 20, 60),
		Attributes: map[string]any{"Id": 3},
	})
	return layers.Catalog{
		{Name: "Donuts", Category: model.CategoryArea, Visible: true, Provider: areas},
		{Name: "Wiki", Caption: "Wikipedia", Category: model.CategoryPoint, Visible: true, Provider: pois},
	}
}

func newDeps(t *testing.T) Deps {
	t.Helper()
	ht, err := hittest.New(projection.SphereRadius)
	if err != nil {
		t.Fatal(err)
	}
	return Deps{Log: quiet(), Catalog: sampleCatalog(), Picker: ht}
}

func pick(t *testing.T, h http.HandlerFunc, query string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/pick?"+query, nil))
	return rr
}

func TestHandlePick_HitReturnsGeoJSON(t *testing.T) {
	rr := pick(t, HandlePick(newDeps(t)), "lat=49.0069&lng=8.4037&z=10&layers=Wiki,Donuts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	f, err := geojson.UnmarshalFeature(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v (%s)", err, rr.Body.String())
	}
	if f.Properties["layer"] != "Wiki" || f.Properties["Name"] != "Karlsruhe" {
		t.Fatalf("properties=%v", f.Properties)
	}
}

func TestHandlePick_BackgroundWhenPointLayerNotRequested(t *testing.T) {
	rr := pick(t, HandlePick(newDeps(t)), "lat=49.0069&lng=8.4037&z=10&layers=Donuts,Unknown")
	f, err := geojson.UnmarshalFeature(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v (%s)", err, rr.Body.String())
	}
	if f.Properties["layer"] != "Donuts" {
		t.Fatalf("properties=%v", f.Properties)
	}
}

func TestHandlePick_MissReturnsEmptyObject(t *testing.T) {
	rr := pick(t, HandlePick(newDeps(t)), "lat=-30&lng=-60&z=10&layers=Wiki,Donuts")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "{}" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestHandlePick_BadRequest(t *testing.T) {
	rr := pick(t, HandlePick(newDeps(t)), "lat=abc&lng=8&z=10&layers=Wiki")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("want error json, got %s", rr.Body.String())
	}
}

type failingPicker struct{}

func (failingPicker) SearchEnvelope(lat, lon, _ float64) model.Envelope {
	return model.PointEnvelope(orb.Point{lon, lat})
}

func (failingPicker) HitTest(context.Context, layers.Catalog, float64, float64, float64) (*hittest.Hit, error) {
	return nil, errors.New(`layer "shops": query: connection reset`)
}

func TestHandlePick_ProviderFailureIs500(t *testing.T) {
	d := newDeps(t)
	d.Picker = failingPicker{}
	rr := pick(t, HandlePick(d), "lat=1&lng=1&z=1&layers=shops")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection reset") {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

type fakeSelection struct {
	mu       sync.Mutex
	replaced map[string]*hittest.Hit
	added    map[string][]*hittest.Hit
	err      error
}

func (f *fakeSelection) Add(_ context.Context, session string, hit *hittest.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.added == nil {
		f.added = map[string][]*hittest.Hit{}
	}
	f.added[session] = append(f.added[session], hit)
	return f.err
}

func (f *fakeSelection) Replace(_ context.Context, session string, hit *hittest.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaced == nil {
		f.replaced = map[string]*hittest.Hit{}
	}
	f.replaced[session] = hit
	return f.err
}

func (f *fakeSelection) Get(_ context.Context, session string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	if h := f.replaced[session]; h != nil {
		fc.Append(h.GeoJSON())
	}
	return fc, f.err
}

func (f *fakeSelection) Clear(_ context.Context, session string) error {
	delete(f.replaced, session)
	return f.err
}

type fakeEvents struct{ got []pickevents.Event }

func (f *fakeEvents) Publish(ev pickevents.Event) bool {
	f.got = append(f.got, ev)
	return true
}

func TestHandlePick_UpdatesSelectionAndPublishes(t *testing.T) {
	d := newDeps(t)
	sel := &fakeSelection{}
	ev := &fakeEvents{}
	d.Selection, d.Events = sel, ev
	h := HandlePick(d)

	pick(t, h, "lat=49.0069&lng=8.4037&z=10&layers=Wiki&session=s1")
	if hit := sel.replaced["s1"]; hit == nil || hit.Layer != "Wiki" {
		t.Fatalf("selection not replaced with hit: %+v", sel.replaced)
	}
	if len(ev.got) != 1 || ev.got[0].Layer != "Wiki" || ev.got[0].Tier != "foreground" || ev.got[0].Session != "s1" {
		t.Fatalf("events=%+v", ev.got)
	}
	if !strings.HasPrefix(ev.got[0].FeatureKey, "Wiki:f=") {
		t.Fatalf("feature key=%q", ev.got[0].FeatureKey)
	}

	// a miss clears the selection and publishes nothing
	pick(t, h, "lat=-30&lng=-60&z=10&layers=Wiki&session=s1")
	if hit, ok := sel.replaced["s1"]; !ok || hit != nil {
		t.Fatalf("miss should replace selection with nothing: %+v", sel.replaced)
	}
	if len(ev.got) != 1 {
		t.Fatalf("miss must not publish, got %d events", len(ev.got))
	}
}

func TestHandlePick_AppendExtendsSelection(t *testing.T) {
	d := newDeps(t)
	sel := &fakeSelection{}
	d.Selection = sel
	h := HandlePick(d)

	pick(t, h, "lat=49.0069&lng=8.4037&z=10&layers=Wiki&session=s1&append=true")
	pick(t, h, "lat=50&lng=10&z=10&layers=Donuts&session=s1&append=1")
	// a miss leaves an appended selection alone
	pick(t, h, "lat=-30&lng=-60&z=10&layers=Wiki&session=s1&append=true")

	got := sel.added["s1"]
	if len(got) != 2 || got[0].Layer != "Wiki" || got[1].Layer != "Donuts" {
		t.Fatalf("added=%+v", got)
	}
	if len(sel.replaced) != 0 {
		t.Fatalf("append must not replace: %+v", sel.replaced)
	}

	rr := pick(t, h, "lat=50&lng=10&z=10&layers=Donuts&session=s1&append=maybe")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad append flag status=%d", rr.Code)
	}
}

func TestHandlePick_SelectionFailureDoesNotFailPick(t *testing.T) {
	d := newDeps(t)
	d.Selection = &fakeSelection{err: errors.New("redis down")}
	rr := pick(t, HandlePick(d), "lat=49.0069&lng=8.4037&z=10&layers=Wiki&session=s1")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Karlsruhe") {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestWriteJSON_UnencodableIsServerError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"value": math.NaN()})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("body=%q err=%v", rr.Body.String(), err)
	}
}

func TestHandlePick_NaNAttributeIsServerError(t *testing.T) {
	d := newDeps(t)
	d.Catalog = layers.Catalog{{
		Name:     "Addresses",
		Category: model.CategoryPoint,
		Visible:  true,
		Provider: memory.New(model.Feature{
			Geometry:   orb.Point{8.4037, 49.0069},
			Attributes: map[string]any{"score": math.NaN()},
		}),
	}}
	rr := pick(t, HandlePick(d), "lat=49.0069&lng=8.4037&z=10&layers=Addresses")
	if rr.Code != http.StatusInternalServerError || !strings.Contains(rr.Body.String(), `"error"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHandleLayers(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleLayers(newDeps(t))(rr, httptest.NewRequest(http.MethodGet, "/layers", nil))

	var got []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1]["name"] != "Wiki" || got[1]["caption"] != "Wikipedia" || got[1]["layerCategory"] != "Point" {
		t.Fatalf("layers=%v", got)
	}
	if got[0]["caption"] != "Donuts" {
		t.Fatalf("caption should fall back to the name: %v", got[0])
	}
	if _, ok := got[0]["Visible"]; ok {
		t.Fatalf("visibility must not be serialized: %v", got[0])
	}

	rr = httptest.NewRecorder()
	HandleLayers(Deps{})(rr, httptest.NewRequest(http.MethodGet, "/layers", nil))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty catalog body=%q", rr.Body.String())
	}
}

func tileRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/tiles/{z}/{x}/{y}/envelope", HandleTileEnvelope(d))
	return r
}

func TestHandleTileEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	tileRouter(Deps{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tiles/3/4/2/envelope", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got tileEnvelopeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Radius != projection.WebMercatorRadius || got.Z != 3 || got.X != 4 || got.Y != 2 {
		t.Fatalf("got %+v", got)
	}

	want := maptile.New(4, 2, 3).Bound()
	const eps = 1e-7
	if d := got.Geographic.MinX - want.Min[0]; d > eps || d < -eps {
		t.Fatalf("geo minX=%v want %v", got.Geographic.MinX, want.Min[0])
	}
	if d := got.Geographic.MaxY - want.Max[1]; d > eps || d < -eps {
		t.Fatalf("geo maxY=%v want %v", got.Geographic.MaxY, want.Max[1])
	}
	if got.Mercator.MinX != 0 {
		t.Fatalf("tile 4 of 8 at z3 starts at the meridian, minX=%v", got.Mercator.MinX)
	}
}

func TestHandleTileEnvelope_BadIndex(t *testing.T) {
	for _, target := range []string{"/tiles/3/8/0/envelope", "/tiles/x/0/0/envelope", "/tiles/31/0/0/envelope"} {
		rr := httptest.NewRecorder()
		tileRouter(Deps{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status=%d", target, rr.Code)
		}
	}
}

func TestHandleSelection(t *testing.T) {
	d := newDeps(t)
	sel := &fakeSelection{}
	d.Selection = sel
	pick(t, HandlePick(d), "lat=49.0069&lng=8.4037&z=10&layers=Wiki&session=s1")

	rr := httptest.NewRecorder()
	HandleSelectionGet(d)(rr, httptest.NewRequest(http.MethodGet, "/selection?session=s1", nil))
	fc, err := geojson.UnmarshalFeatureCollection(rr.Body.Bytes())
	if err != nil || len(fc.Features) != 1 {
		t.Fatalf("fc=%v err=%v body=%s", fc, err, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	HandleSelectionDelete(d)(rr, httptest.NewRequest(http.MethodDelete, "/selection?session=s1", nil))
	if rr.Code != http.StatusNoContent || sel.replaced["s1"] != nil {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleSelectionGet(d)(rr, httptest.NewRequest(http.MethodGet, "/selection", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing session status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleSelectionGet(newDeps(t))(rr, httptest.NewRequest(http.MethodGet, "/selection?session=s1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("disabled store status=%d", rr.Code)
	}
}

func TestInstrument_RecordsStatus(t *testing.T) {
	h := Instrument("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status=%d", rr.Code)
	}
}
