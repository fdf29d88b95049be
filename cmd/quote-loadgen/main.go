// Command quote-loadgen drives /quote with a Zipf-skewed mix of the configured
// pairs and reports latency and cache hit ratio.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
	"github.com/mohammed-shakir/route-cache/internal/strategy/loader"
)

type Config struct {
	TargetURL       string
	StrategyFile    string
	Concurrency     int
	Duration        time.Duration
	RPS             float64
	ZipfS           float64
	ZipfV           float64
	Overflow        float64
	Seed            uint64
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/quote", "Quote endpoint URL")
	flag.StringVar(&cfg.StrategyFile, "strategies", "", "Strategy YAML (default: embedded table)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.RPS, "rps", 0, "Total request rate limit (0 = unlimited)")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.Float64Var(&cfg.Overflow, "overflow", 0.02, "Share of requests above the largest bucket")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Workload seed (0 = time based)")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/quotes", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Parse()
	return cfg
}

// target is one bucket of one configured pair. Amounts are drawn from
// (lower, upper].
type target struct {
	TokenIn  string
	TokenOut string
	Type     string
	ChainID  string
	Lower    decimal.Decimal
	Upper    decimal.Decimal
}

// buildTargets expands every concrete strategy into one target per bucket.
// Wildcard keys name no concrete token and are skipped.
func buildTargets(tbl *strategy.Table) []target {
	var out []target
	for _, k := range tbl.Keys() {
		if k.TokenIn.IsAny() || k.TokenOut.IsAny() {
			continue
		}
		s, ok := tbl.Lookup(k)
		if !ok {
			continue
		}
		lower := decimal.Zero
		for _, b := range s.Buckets() {
			out = append(out, target{
				TokenIn:  string(k.TokenIn),
				TokenOut: string(k.TokenOut),
				Type:     queryType(s),
				ChainID:  k.ChainID.String(),
				Lower:    lower,
				Upper:    b.Threshold,
			})
			lower = b.Threshold
		}
	}
	return out
}

func queryType(s *strategy.Strategy) string {
	if s.TradeType() == model.ExactOutput {
		return "exactOut"
	}
	return "exactIn"
}

// amount picks a value in (Lower, Upper], or above Upper when overflow is set.
func (t target) amount(r *rand.Rand, overflow bool) decimal.Decimal {
	if overflow {
		return t.Upper.Mul(decimal.NewFromFloat(1.5 + r.Float64()))
	}
	span := t.Upper.Sub(t.Lower)
	f := decimal.NewFromFloat(1 - r.Float64()) // (0, 1]
	a := t.Lower.Add(span.Mul(f)).Round(6)
	if !a.GreaterThan(t.Lower) {
		return t.Upper
	}
	return a
}

func (t target) url(base *url.URL, amount decimal.Decimal) string {
	u := *base
	q := u.Query()
	q.Set("tokenIn", t.TokenIn)
	q.Set("tokenOut", t.TokenOut)
	q.Set("type", t.Type)
	q.Set("chainId", t.ChainID)
	q.Set("amount", amount.String())
	u.RawQuery = q.Encode()
	return u.String()
}

type sample struct {
	Timestamp   time.Time
	Latency     time.Duration
	Status      int
	CacheStatus string
	ErrorMsg    string
	Target      int
	Amount      string
}

type quoteBody struct {
	CacheStatus string `json:"cacheStatus"`
}

// cacheStatus extracts the cacheStatus field of a /quote response.
func cacheStatus(r io.Reader) string {
	var b quoteBody
	if err := json.NewDecoder(io.LimitReader(r, 1<<16)).Decode(&b); err != nil {
		return ""
	}
	return b.CacheStatus
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Bypasses      int64     `json:"bypasses"`
	HitRatio      float64   `json:"hit_ratio"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Targets       int       `json:"targets"`
	TargetURL     string    `json:"target"`
}

type aggregate struct {
	total, success, errors int64
	hits, misses, bypasses int64
	latMs                  []float64
}

func (a *aggregate) add(s sample) {
	a.total++
	if s.ErrorMsg != "" || s.Status < 200 || s.Status >= 300 {
		a.errors++
		return
	}
	a.success++
	a.latMs = append(a.latMs, float64(s.Latency.Microseconds())/1000.0)
	switch s.CacheStatus {
	case "hit":
		a.hits++
	case "miss":
		a.misses++
	default:
		a.bypasses++
	}
}

// hitRatio is hits over cacheable answers; bypassed quotes are excluded.
func (a *aggregate) hitRatio() float64 {
	if a.hits+a.misses == 0 {
		return 0
	}
	return float64(a.hits) / float64(a.hits+a.misses)
}

func main() {
	cfg := loadConfig()
	if cfg.ZipfS <= 1 || cfg.ZipfV < 1 || cfg.Concurrency <= 0 {
		log.Fatalf("need zipf-s > 1, zipf-v >= 1 and concurrency > 0")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	tbl, err := loader.Table(cfg.StrategyFile)
	if err != nil {
		log.Fatalf("load strategies: %v", err)
	}
	targets := buildTargets(tbl)
	if len(targets) == 0 {
		log.Fatalf("no concrete strategies to drive")
	}
	base, err := url.Parse(cfg.TargetURL)
	if err != nil {
		log.Fatalf("bad target: %v", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	imax := uint64(len(targets)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        1024,
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	var lim *rate.Limiter
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samples := make(chan sample, 4096)
	results := make(chan aggregate, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "cache_status", "error", "target", "amount"})
		var agg aggregate
		agg.latMs = make([]float64, 0, 1<<16)
		for s := range samples {
			agg.add(s)
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Status),
				s.CacheStatus,
				s.ErrorMsg,
				strconv.Itoa(s.Target),
				s.Amount,
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		results <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d rps=%.0f zipf(s=%.2f,v=%.2f) targets=%d",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.RPS, cfg.ZipfS, cfg.ZipfV, len(targets))

	var wg conc.WaitGroup
	for id := range cfg.Concurrency {
		wg.Go(func() {
			r := rand.New(rand.NewPCG(seed, uint64(id)+1))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				if lim != nil && lim.Wait(ctx) != nil {
					return
				}
				idx := int(zipf.Uint64())
				t := targets[idx]
				amt := t.amount(r, r.Float64() < cfg.Overflow)

				s := sample{Timestamp: time.Now(), Target: idx, Amount: amt.String()}
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, t.url(base, amt), nil)
				req.Header.Set("Accept", "application/json")
				resp, err := httpClient.Do(req)
				s.Latency = time.Since(s.Timestamp)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.ErrorMsg = err.Error()
				} else {
					s.Status = resp.StatusCode
					s.CacheStatus = cacheStatus(resp.Body)
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		})
	}
	wg.Wait()
	close(samples)

	agg := <-results
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	run := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		Hits:          agg.hits,
		Misses:        agg.misses,
		Bypasses:      agg.bypasses,
		HitRatio:      agg.hitRatio(),
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Targets:       len(targets),
		TargetURL:     cfg.TargetURL,
	}

	if jf, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jf)
		enc.SetIndent("", "  ")
		_ = enc.Encode(run)
		_ = jf.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d hit_ratio=%.3f thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		run.TotalRequests, run.SuccessCount, run.ErrorCount, run.HitRatio, run.ThroughputRPS, run.P50Ms, run.P95Ms, run.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	k := (p / 100.0) * float64(len(sorted)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	d := k - f
	return sorted[i]*(1-d) + sorted[i+1]*d
}
