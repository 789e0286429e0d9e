package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nazeru/agrimarket-go/pkg/apiclient"
)

func main() {
	baseURL := flag.String("base-url", getenv("ORDER_BASE_URL", "http://localhost:8080"), "order-service base URL")
	scenario := flag.String("scenario", "oversell", "scenario to run: checkout|oversell|replay")
	total := flag.Int("total", 1000, "total number of orders")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	stock := flag.Int("stock", 100, "initial stock for the oversell scenario")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *total <= 0 || *concurrency <= 0 || *stock < 0 {
		fmt.Fprintln(os.Stderr, "total and concurrency must be > 0, stock must be >= 0")
		os.Exit(1)
	}

	result, err := runBench(context.Background(), apiclient.New(*baseURL, *timeout), benchConfig{
		Scenario:    *scenario,
		Total:       *total,
		Concurrency: *concurrency,
		Stock:       *stock,
		Timeout:     *timeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	result.BaseURL = *baseURL

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		if err := writeJSON(*output, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Oversold {
		fmt.Fprintln(os.Stderr, "stock invariant violated")
		os.Exit(1)
	}
}

func writeJSON(path string, result benchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
