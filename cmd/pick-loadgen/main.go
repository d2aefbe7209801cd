// Command pick-loadgen drives /pick with a Zipf distributed pool of map
// clicks and writes per-request samples plus a summary.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mohammed-shakir/mercator-pick/internal/core/httpclient"
	"github.com/mohammed-shakir/mercator-pick/internal/logger"
)

type Config struct {
	TargetURL       string
	Layers          string
	Session         string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	PickCount       int
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	POIFile         string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/pick", "pick server /pick URL")
	flag.StringVar(&cfg.Layers, "layers", "Wiki,World Countries", "comma separated layer names, topmost first")
	flag.StringVar(&cfg.Session, "session", "", "session id sent with every pick, empty for none")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.PickCount, "picks", 256, "distinct picks in pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/pick", "output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 5*time.Second, "per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "append UTC timestamp to output prefix")
	flag.StringVar(&cfg.POIFile, "pois", "", "optional tab separated POI file to draw pick positions from")
	flag.Parse()
	return cfg
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	Hit       bool
	ErrorMsg  string
	PickIndex int
	Pick      string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	HitCount      int64     `json:"hits"`
	ErrorCount    int64     `json:"errors"`
	HitRatio      float64   `json:"hit_ratio"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Picks         int       `json:"picks"`
	TargetURL     string    `json:"target"`
	Layers        string    `json:"layers"`
}

type aggregated struct {
	total   int64
	success int64
	hits    int64
	errors  int64
	latMs   []float64
}

func (a *aggregated) add(s sample) {
	a.total++
	if s.ErrorMsg != "" || s.Status < 200 || s.Status >= 300 {
		a.errors++
		return
	}
	a.success++
	if s.Hit {
		a.hits++
	}
	a.latMs = append(a.latMs, float64(s.Latency.Microseconds())/1000.0)
}

func (a *aggregated) summarize(cfg Config, start, end time.Time) summary {
	elapsed := end.Sub(start).Seconds()
	sort.Float64s(a.latMs)
	s := summary{
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		DurationSec:   elapsed,
		TotalRequests: a.total,
		SuccessCount:  a.success,
		HitCount:      a.hits,
		ErrorCount:    a.errors,
		P50Ms:         percentile(a.latMs, 50),
		P95Ms:         percentile(a.latMs, 95),
		P99Ms:         percentile(a.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Picks:         cfg.PickCount,
		TargetURL:     cfg.TargetURL,
		Layers:        cfg.Layers,
	}
	if elapsed > 0 {
		s.ThroughputRPS = float64(a.total) / elapsed
	}
	if a.success > 0 {
		s.HitRatio = float64(a.hits) / float64(a.success)
	}
	return s
}

var emptyObject = []byte("{}")

// doPick issues one request; an empty JSON object body is a miss.
func doPick(ctx context.Context, c *http.Client, target *url.URL, cfg Config, idx int, p pickPoint) sample {
	u := *target
	u.RawQuery = p.query(cfg.Layers, cfg.Session).Encode()

	start := time.Now()
	s := sample{Timestamp: start, PickIndex: idx, Pick: p.String()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		s.Latency = time.Since(start)
		s.ErrorMsg = err.Error()
		return s
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	s.Latency = time.Since(start)
	s.Status = resp.StatusCode
	switch {
	case err != nil:
		s.ErrorMsg = err.Error()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
	default:
		s.Hit = !bytes.Equal(bytes.TrimSpace(body), emptyObject)
	}
	return s
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := loadConfig()

	zl := logger.Build(logger.Config{Level: "info", Console: true, Component: "pick-loadgen"}, os.Stderr)
	log := logger.NewSlog(&zl)

	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		log.Error("bad target url", "target", cfg.TargetURL, "err", err)
		return 2
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}
	if err := os.MkdirAll(filepath.Dir(prefix), 0o750); err != nil {
		log.Error("mkdir results", "err", err)
		return 1
	}

	seed := uint64(time.Now().UnixNano())
	r := rand.New(rand.NewPCG(seed, 0))

	var picks []pickPoint
	if strings.TrimSpace(cfg.POIFile) != "" {
		picks, err = picksFromPOIs(cfg.POIFile, cfg.PickCount, r)
		if err != nil {
			log.Warn("poi load failed, using synthetic picks", "file", cfg.POIFile, "err", err)
		} else {
			log.Info("using poi driven picks", "n", len(picks), "file", cfg.POIFile)
		}
	}
	if len(picks) == 0 {
		picks = makePicks(cfg.PickCount, r)
		log.Info("using synthetic picks", "n", len(picks))
	}
	if len(picks) == 0 {
		log.Error("no picks generated")
		return 1
	}
	imax := uint64(len(picks)) - 1

	client := httpclient.New(httpclient.Options{
		Timeout:             cfg.RequestTimeout,
		MaxIdleConnsPerHost: max(cfg.Concurrency, 16),
	})

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Error("open csv", "err", err)
		return 1
	}
	defer func() { _ = csvFile.Close() }()
	w := csv.NewWriter(csvFile)

	samples := make(chan sample, 4096)
	results := make(chan *aggregated, 1)
	go func() {
		_ = w.Write([]string{"timestamp", "latency_ms", "status", "hit", "error", "pick_idx", "pick"})
		agg := &aggregated{latMs: make([]float64, 0, 1<<16)}
		for s := range samples {
			agg.add(s)
			_ = w.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Status),
				strconv.FormatBool(s.Hit),
				s.ErrorMsg,
				strconv.Itoa(s.PickIndex),
				s.Pick,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			log.Warn("csv flush", "err", err)
		}
		results <- agg
	}()

	start := time.Now()
	log.Info("loadgen start",
		"target", cfg.TargetURL,
		"layers", cfg.Layers,
		"duration", cfg.Duration,
		"concurrency", cfg.Concurrency,
		"zipf_s", cfg.ZipfS,
		"zipf_v", cfg.ZipfV,
		"picks", len(picks))

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rw := rand.New(rand.NewPCG(seed, uint64(id)+1))
			zipf := rand.NewZipf(rw, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				v := zipf.Uint64()
				if v > uint64(math.MaxInt) || int(v) >= len(picks) {
					continue
				}
				idx := int(v)
				s := doPick(ctx, client, target, cfg, idx, picks[idx])
				if ctx.Err() != nil {
					return
				}
				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	close(samples)
	agg := <-results
	sum := agg.summarize(cfg, start, time.Now())

	if f, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		_ = f.Close()
	} else {
		log.Warn("open summary", "err", err)
	}

	log.Info("done",
		"total", sum.TotalRequests,
		"success", sum.SuccessCount,
		"hits", sum.HitCount,
		"errors", sum.ErrorCount,
		"rps", sum.ThroughputRPS,
		"p50_ms", sum.P50Ms,
		"p95_ms", sum.P95Ms,
		"p99_ms", sum.P99Ms)
	log.Info("wrote results", "summary", jsonPath, "samples", csvPath)
	return 0
}
