package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const idempotencyHeader = "Idempotency-Key"

type loadMode string

const (
	modeCreate         loadMode = "create"
	modeCreateComplete loadMode = "create-complete"
	modeCreateCancel   loadMode = "create-cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	reopenRate  int
	price       decimal.Decimal
	quantity    int
	stock       int
	customerID  int64
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg        config
		modeValue  string
		priceValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-complete | create-cancel")
	fs.IntVar(&cfg.reopenRate, "reopen-rate", 0, "percent of cancelled orders to reopen in create-cancel mode (0..100)")
	fs.StringVar(&priceValue, "price", "10.00", "order line price")
	fs.IntVar(&cfg.quantity, "quantity", 1, "order line quantity")
	fs.IntVar(&cfg.stock, "stock", 1_000_000, "stock of the seeded product")
	fs.Int64Var(&cfg.customerID, "customer-id", 1, "customer id for created orders")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case !cfg.price.IsPositive():
		return cfg, errors.New("price must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.stock <= 0:
		return cfg, errors.New("stock must be > 0")
	case cfg.customerID <= 0:
		return cfg, errors.New("customer-id must be > 0")
	case cfg.reopenRate < 0 || cfg.reopenRate > 100:
		return cfg, errors.New("reopen-rate must be between 0 and 100")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateComplete, modeCreateCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg, &http.Client{Timeout: cfg.timeout})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run заводит товар под нагрузку и гоняет сценарии в cfg.concurrency воркеров.
func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	cli := &apiClient{baseURL: cfg.baseURL, http: httpClient, timeout: cfg.timeout, col: newCollector()}

	productID, err := cli.createProduct(ctx, cfg)
	if err != nil {
		return report{}, fmt.Errorf("seed product: %w", err)
	}

	startedAt := time.Now()
	runID := uuid.NewString()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(ctx, cli, cfg, productID, runID, index)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return cli.col.buildReport(startedAt, time.Since(startedAt)), nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, cli *apiClient, cfg config, productID, runID string, index int) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		cli.col.record(scenarioMethod, time.Since(start), outcome, err == nil)
	}()

	orderID, err := cli.createOrder(ctx, cfg, productID, fmt.Sprintf("lt-create-%s-%d", runID, index))
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeCreateComplete:
		return cli.command(ctx, "CompleteOrder", orderID, "complete")
	case modeCreateCancel:
		if err := cli.command(ctx, "CancelOrder", orderID, "cancel"); err != nil {
			return err
		}
		if shouldReopen(index, cfg.reopenRate) {
			return cli.command(ctx, "ReopenOrder", orderID, "reopen")
		}
	}
	return nil
}

func shouldReopen(index, rate int) bool {
	switch {
	case rate <= 0:
		return false
	case rate >= 100:
		return true
	default:
		return index%100 < rate
	}
}

type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func (c *apiClient) createProduct(ctx context.Context, cfg config) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"name":           "load-" + uuid.NewString()[:8],
		"price":          cfg.price,
		"stock_quantity": cfg.stock,
	}
	if err := c.do(ctx, "CreateProduct", http.MethodPost, "/products", "", body, http.StatusCreated, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("create product returned empty id")
	}
	return created.ID, nil
}

func (c *apiClient) createOrder(ctx context.Context, cfg config, productID, key string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"customer_id": cfg.customerID,
		"items": []map[string]any{
			{"product_id": productID, "price": cfg.price, "quantity": cfg.quantity},
		},
	}
	if err := c.do(ctx, "CreateOrder", http.MethodPost, "/orders", key, body, http.StatusCreated, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("create order returned empty id")
	}
	return created.ID, nil
}

func (c *apiClient) command(ctx context.Context, method, orderID, action string) error {
	return c.do(ctx, method, http.MethodPut, "/orders/"+orderID+"/"+action, "", nil, http.StatusNoContent, nil)
}

// do выполняет запрос, учитывает его в collector и декодирует ответ в out.
func (c *apiClient) do(ctx context.Context, method, httpMethod, path, key string, body any, want int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", method, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(method, time.Since(start), statusLabel(0), false)
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	label := statusLabel(resp.StatusCode)
	if resp.StatusCode != want {
		c.col.record(method, time.Since(start), label, false)
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.col.record(method, time.Since(start), "decode_error", false)
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
	}
	c.col.record(method, time.Since(start), label, true)
	return nil
}
