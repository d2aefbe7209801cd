package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/config"
	"github.com/mohammed-shakir/mercator-pick/internal/core/hittest"
	"github.com/mohammed-shakir/mercator-pick/internal/core/layers"
	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
	"github.com/mohammed-shakir/mercator-pick/internal/core/router"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/memory"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	ht, _ := hittest.New(projection.SphereRadius)
	cat := layers.Catalog{{
		Name: "Wiki", Category: model.CategoryPoint, Visible: true,
		Provider: memory.New(model.Feature{Geometry: orb.Point{8.4037, 49.0069}, Attributes: map[string]any{"Name": "Karlsruhe"}}),
	}}
	srv := httptest.NewServer(NewHandler(quiet(), router.Deps{Catalog: cat, Picker: ht}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHandler_Routes(t *testing.T) {
	srv := testServer(t)

	cases := []struct {
		path   string
		status int
		substr string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusOK, `"ready"`},
		{"/layers", http.StatusOK, `"name":"Wiki"`},
		{"/pick?lat=49.0069&lng=8.4037&z=10&layers=Wiki", http.StatusOK, "Karlsruhe"},
		{"/pick?lat=0&lng=0&z=10&layers=Wiki", http.StatusOK, "{}"},
		{"/pick?lat=x&lng=0&z=10&layers=Wiki", http.StatusBadRequest, `"error"`},
		{"/tiles/0/0/0/envelope", http.StatusOK, `"mercator"`},
		{"/selection?session=s1", http.StatusNotFound, `"error"`},
		{"/metrics", http.StatusOK, "http_requests_total"},
	}
	for _, c := range cases {
		status, body := get(t, srv.URL+c.path)
		if status != c.status || !strings.Contains(body, c.substr) {
			t.Fatalf("%s: status=%d body=%s", c.path, status, body)
		}
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, config.Config{Addr: addr}, quiet(), http.NotFoundHandler())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			_ = c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
