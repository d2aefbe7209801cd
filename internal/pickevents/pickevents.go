// Package pickevents publishes pick results to kafka.
package pickevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/mercator-pick/internal/core/observability"
	"github.com/mohammed-shakir/mercator-pick/internal/mapper"
)

type Event struct {
	Layer      string    `json:"layer"`
	Tier       string    `json:"tier"`
	FeatureKey string    `json:"feature_key"`
	Lon        float64   `json:"lon"`
	Lat        float64   `json:"lat"`
	Zoom       float64   `json:"zoom"`
	Cell       string    `json:"cell,omitempty"`
	Region     string    `json:"region,omitempty"`
	Session    string    `json:"session,omitempty"`
	TS         time.Time `json:"ts"`
}

type Config struct {
	Brokers []string
	Topic   string
	H3Res   int
	// RegionRes, when coarser than H3Res, adds the parent cell as region
	RegionRes int
	QueueSize int
	// picks of the same feature by the same session inside this window are
	// suppressed; zero disables it
	DedupeWindow time.Duration
	DedupeSize   int
}

func ParseBrokers(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type Publisher struct {
	topic   string
	res     int
	region  int
	cells   mapper.Interface
	log     *slog.Logger
	prod    sarama.AsyncProducer
	dedupe  *recentPicks
	mu      sync.RWMutex
	closed  bool
	events  chan Event
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(cfg Config, cells mapper.Interface, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("pickevents: no brokers configured")
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.Return.Errors = true
	sc.Producer.Return.Successes = false
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("pickevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, cfg, cells, log), nil
}

// NewWithProducer runs the publisher on an existing producer, which it owns
// from now on.
func NewWithProducer(prod sarama.AsyncProducer, cfg Config, cells mapper.Interface, log *slog.Logger) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   cfg.Topic,
		res:     cfg.H3Res,
		region:  cfg.RegionRes,
		cells:   cells,
		log:     log,
		prod:    prod,
		events:  make(chan Event, cfg.QueueSize),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}
	if cfg.DedupeWindow > 0 {
		p.dedupe = newRecentPicks(cfg.DedupeSize, cfg.DedupeWindow)
	}

	go p.run()
	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("pickevents: producer error", "err", err)
			}
		}
	}()
	return p
}

func (p *Publisher) run() {
	defer close(p.stopped)
	for ev := range p.events {
		msg, err := p.message(ev)
		if err != nil {
			p.log.Error("pickevents: encode", "err", err)
			continue
		}
		p.prod.Input() <- msg
	}
}

func (p *Publisher) message(ev Event) (*sarama.ProducerMessage, error) {
	if ev.Cell == "" && p.cells != nil {
		c, err := p.cells.CellForPoint(ev.Lat, ev.Lon, p.res)
		if err == nil {
			ev.Cell = c
		}
	}
	if ev.Region == "" && ev.Cell != "" && p.cells != nil && p.region > 0 && p.region < p.res {
		if r, err := p.cells.ToParent(ev.Cell, p.region); err == nil {
			ev.Region = r
		}
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(b),
		Timestamp: ev.TS,
	}
	// same cell, same partition
	if ev.Cell != "" {
		msg.Key = sarama.StringEncoder(ev.Cell)
	}
	return msg, nil
}

// Publish enqueues ev without blocking. It reports whether ev was queued;
// duplicates and overflow are dropped.
func (p *Publisher) Publish(ev Event) bool {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if p.dedupe != nil && ev.Session != "" && !p.dedupe.first(ev.Session+"\x00"+ev.FeatureKey, ev.TS) {
		observability.IncPickEvent("suppressed")
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncPickEvent("dropped")
		return false
	}
	select {
	case p.events <- ev:
		observability.IncPickEvent("queued")
		return true
	default:
		// queue full, never block the request path
		observability.IncPickEvent("dropped")
		return false
	}
}

// Close drains queued events into the producer and closes it.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("pickevents: close producer: %w", err)
	}
	return nil
}
