package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type CompareCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	Queue   int
}

type InvalidationCfg struct {
	Enabled    bool
	Brokers    string
	Topic      string
	GroupID    string
	DedupeSize int
}

// RedisCfg tunes the Redis client. Zero values keep the client defaults.
type RedisCfg struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type ShadowCfg struct {
	Timeout time.Duration
	Workers int
	Rate    float64
	Burst   int
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	MetricsEnabled  bool
	StrategyFile    string
	OverflowPolicy  string
	RouteStore      string
	RedisAddr       string
	Redis           RedisCfg
	RouteTTL        time.Duration
	RouteMemoryKeys int
	RouteSelector   string
	SelectorSeed    uint64
	RouterURL       string
	ComputeTimeout  time.Duration
	CacheOpTimeout  time.Duration
	Shadow          ShadowCfg
	Compare         CompareCfg
	Invalidation    InvalidationCfg
}

func FromEnv() Config {
	workers := getint("SHADOW_WORKERS", 8)
	if workers <= 0 {
		workers = 1
	}

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		MetricsEnabled:  getbool("METRICS_ENABLED", true),
		StrategyFile:    getenv("STRATEGY_FILE", ""),
		OverflowPolicy:  getenv("OVERFLOW_POLICY", "uncached"),
		RouteStore:      strings.ToLower(getenv("ROUTE_STORE", "memory")),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		Redis: RedisCfg{
			PoolSize:     getint("REDIS_POOL_SIZE", 32),
			MinIdleConns: getint("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getduration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getduration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		RouteTTL:        getduration("ROUTE_TTL", 5*time.Minute),
		RouteMemoryKeys: getint("ROUTE_MEMORY_KEYS", 10000),
		RouteSelector:   strings.ToLower(getenv("ROUTE_SELECTOR", "round_robin")),
		SelectorSeed:    getuint64("SELECTOR_SEED", 1),
		RouterURL:       getenv("ROUTER_URL", "http://localhost:3000/route"),
		ComputeTimeout:  getduration("COMPUTE_TIMEOUT", 5*time.Second),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		Shadow: ShadowCfg{
			Timeout: getduration("SHADOW_TIMEOUT", 10*time.Second),
			Workers: workers,
			Rate:    getfloat("SHADOW_RATE", 50),
			Burst:   getint("SHADOW_BURST", 100),
		},
		Compare: CompareCfg{
			Enabled: getbool("COMPARE_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("COMPARE_TOPIC", "route-compare"),
			Queue:   getint("COMPARE_QUEUE", 1024),
		},
		Invalidation: InvalidationCfg{
			Enabled:    getbool("INVALIDATION_ENABLED", false),
			Brokers:    getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:      getenv("INVALIDATION_TOPIC", "route-invalidation"),
			GroupID:    getenv("KAFKA_GROUP_ID", "route-cache-invalidator"),
			DedupeSize: getint("INVALIDATION_DEDUPE_SIZE", 4096),
		},
	}
}

// BrokerList splits the comma separated broker list.
func (c CompareCfg) BrokerList() []string { return splitCSV(c.Brokers) }

func (c InvalidationCfg) BrokerList() []string { return splitCSV(c.Brokers) }

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
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

func getuint64(k string, def uint64) uint64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
