package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/agrimarket-go/internal/httpapi"
	"github.com/nazeru/agrimarket-go/pkg/apiclient"
)

const benchSeller = "bench-seller"

type benchConfig struct {
	Scenario    string
	Total       int
	Concurrency int
	Stock       int
	Timeout     time.Duration
}

type benchResult struct {
	Timestamp          string         `json:"timestamp"`
	BaseURL            string         `json:"base_url"`
	Scenario           string         `json:"scenario"`
	Transactions       int            `json:"transactions"`
	Concurrency        int            `json:"concurrency"`
	InitialStock       int            `json:"initial_stock"`
	FinalStock         int            `json:"final_stock"`
	SuccessfulRequests int            `json:"successful_requests"`
	RejectedRequests   int            `json:"rejected_requests"`
	ErrorRequests      int            `json:"error_requests"`
	Oversold           bool           `json:"oversold"`
	DurationSeconds    float64        `json:"duration_seconds"`
	AvgLatencyMs       float64        `json:"avg_latency_ms"`
	P50LatencyMs       float64        `json:"p50_latency_ms"`
	P90LatencyMs       float64        `json:"p90_latency_ms"`
	P95LatencyMs       float64        `json:"p95_latency_ms"`
	P99LatencyMs       float64        `json:"p99_latency_ms"`
	ThroughputRPS      float64        `json:"throughput_rps"`
	StatusCounts       map[string]int `json:"status_counts"`
	ErrorClasses       map[string]int `json:"error_classes"`
	FirstError         string         `json:"first_error,omitempty"`
}

type collector struct {
	mu           sync.Mutex
	success      int
	rejected     int
	errors       int
	latenciesMs  []float64
	statusCounts map[string]int
	errorClasses map[string]int
	firstError   string
}

func newCollector() *collector {
	return &collector{statusCounts: map[string]int{}, errorClasses: map[string]int{}}
}

func (c *collector) record(status int, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCounts[strconv.Itoa(status)]++
	if err == nil {
		c.success++
		c.latenciesMs = append(c.latenciesMs, float64(latency.Microseconds())/1000)
		return
	}
	class := classifyError(err)
	c.errorClasses[class]++
	if class == "business_rejected" {
		c.rejected++
		return
	}
	c.errors++
	if c.firstError == "" {
		c.firstError = err.Error()
	}
}

// classifyError separates business rejections (409) from failures.
func classifyError(err error) string {
	var se *apiclient.StatusError
	if !errors.As(err, &se) {
		return "transport"
	}
	switch {
	case se.Code == http.StatusConflict:
		return "business_rejected"
	case se.Code >= 500:
		return "http_5xx"
	default:
		return "http_4xx"
	}
}

var benchPrice = decimal.RequireFromString("1.00")

func orderRequest(productID string) httpapi.CreateOrderRequest {
	unit := benchPrice
	return httpapi.CreateOrderRequest{
		SellerID: benchSeller,
		Items:    []httpapi.ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: &unit}},
		FulfillmentRequest: httpapi.FulfillmentRequest{
			FulfillmentMode: "Pickup",
			PickupDate:      time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
		},
	}
}

// runBench seeds one product, fires Total one-unit orders with Concurrency
// workers and checks the stock invariant afterwards.
func runBench(ctx context.Context, client *apiclient.Client, cfg benchConfig) (benchResult, error) {
	switch cfg.Scenario {
	case "checkout", "oversell", "replay":
	default:
		return benchResult{}, fmt.Errorf("unknown scenario: %s", cfg.Scenario)
	}
	stock := cfg.Stock
	if cfg.Scenario != "oversell" {
		stock = cfg.Total
	}

	p, err := client.CreateProduct(ctx, benchSeller, httpapi.CreateProductRequest{
		ID:       "bench-" + uuid.NewString()[:8],
		Name:     "Bench produce",
		Unit:     "box",
		Price:    benchPrice,
		Quantity: stock,
	})
	if err != nil {
		return benchResult{}, fmt.Errorf("seed product: %w", err)
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	m := newCollector()
	start := time.Now()
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range tasks {
				buyer := fmt.Sprintf("bench-buyer-%d", n)
				key := ""
				if cfg.Scenario == "replay" {
					key = uuid.NewString()
				}
				reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
				t0 := time.Now()
				first, code, err := client.CreateOrder(reqCtx, buyer, key, orderRequest(p.ID))
				m.record(code, time.Since(t0), err)
				if err == nil && key != "" {
					again, code, err := client.CreateOrder(reqCtx, buyer, key, orderRequest(p.ID))
					if err == nil && again.OrderID != first.OrderID {
						err = fmt.Errorf("replay of %s created %s", first.OrderID, again.OrderID)
					}
					m.record(code, time.Since(t0), err)
				}
				cancel()
			}
		}()
	}
	for i := 0; i < cfg.Total; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	duration := time.Since(start)

	after, err := client.Product(ctx, p.ID)
	if err != nil {
		return benchResult{}, fmt.Errorf("read final stock: %w", err)
	}

	// replay counts each order twice
	placed := m.success
	if cfg.Scenario == "replay" {
		placed = m.success / 2
	}
	p50, p90, p95, p99 := calcPercentiles(m.latenciesMs)
	return benchResult{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Scenario:           cfg.Scenario,
		Transactions:       cfg.Total,
		Concurrency:        cfg.Concurrency,
		InitialStock:       stock,
		FinalStock:         after.Quantity,
		SuccessfulRequests: m.success,
		RejectedRequests:   m.rejected,
		ErrorRequests:      m.errors,
		Oversold:           after.Quantity < 0 || stock-after.Quantity != placed,
		DurationSeconds:    duration.Seconds(),
		AvgLatencyMs:       mean(m.latenciesMs),
		P50LatencyMs:       p50,
		P90LatencyMs:       p90,
		P95LatencyMs:       p95,
		P99LatencyMs:       p99,
		ThroughputRPS:      float64(m.success) / duration.Seconds(),
		StatusCounts:       m.statusCounts,
		ErrorClasses:       m.errorClasses,
		FirstError:         m.firstError,
	}, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func calcPercentiles(values []float64) (float64, float64, float64, float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.50), percentile(values, 0.90), percentile(values, 0.95), percentile(values, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
