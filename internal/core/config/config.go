package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type PickEventsCfg struct {
	Enabled      bool
	Brokers      string
	Topic        string
	H3Res        int
	RegionRes    int
	QueueSize    int
	DedupeWindow time.Duration
}

type SelectionCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	OpTimeout time.Duration
}

// AddressTable is one address-monitor point table exposed as a layer.
type AddressTable struct {
	Layer   string
	Table   string
	Caption string
}

type Config struct {
	Addr           string
	LogLevel       string
	EarthRadius    float64
	SymbolHalfPx   float64
	ShapefilePath  string
	POICSVPath     string
	DonutCount     int
	AddressDSN     string
	AddressTables  []AddressTable
	RequestTimeout time.Duration
	PickEvents     PickEventsCfg
	Selection      SelectionCfg
}

func FromEnv() Config {
	radius := getfloat("PICK_EARTH_RADIUS", 6371000.0)
	if !(radius > 0) {
		radius = 6371000.0
	}
	half := getfloat("PICK_SYMBOL_HALF_PX", 8)
	if !(half > 0) {
		half = 8
	}
	res := getint("PICK_EVENTS_H3_RES", 9)
	if res < 0 || res > 15 {
		res = 9
	}
	region := getint("PICK_EVENTS_REGION_RES", 5)
	if region < 0 || region > res {
		region = 0
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		EarthRadius:    radius,
		SymbolHalfPx:   half,
		ShapefilePath:  getenv("SHAPEFILE_PATH", ""),
		POICSVPath:     getenv("POI_CSV_PATH", ""),
		DonutCount:     getint("DONUT_COUNT", 100),
		AddressDSN:     getenv("ADDRESS_DSN", ""),
		AddressTables:  parseAddressTables(getenv("ADDRESS_TABLES", "")),
		RequestTimeout: getduration("PICK_REQUEST_TIMEOUT", 0),
		PickEvents: PickEventsCfg{
			Enabled:      getbool("PICK_EVENTS_ENABLED", false),
			Brokers:      getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:        getenv("KAFKA_TOPIC", "map-picks"),
			H3Res:        res,
			RegionRes:    region,
			QueueSize:    getint("PICK_EVENTS_QUEUE", 1024),
			DedupeWindow: getduration("PICK_EVENTS_DEDUPE_WINDOW", 2*time.Second),
		},
		Selection: SelectionCfg{
			Enabled:   getbool("SELECTION_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("SELECTION_TTL", 30*time.Minute),
			OpTimeout: getduration("SELECTION_OP_TIMEOUT", 250*time.Millisecond),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "layer=table[:caption],other=table2" into address tables
func parseAddressTables(s string) []AddressTable {
	var out []AddressTable
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		layer := strings.TrimSpace(kv[0])
		table, caption, _ := strings.Cut(strings.TrimSpace(kv[1]), ":")
		table = strings.TrimSpace(table)
		if layer == "" || table == "" {
			continue
		}
		out = append(out, AddressTable{Layer: layer, Table: table, Caption: strings.TrimSpace(caption)})
	}
	return out
}
