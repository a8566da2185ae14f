// Package jupiter is a client for the Jupiter quote, swap-build and price APIs.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/pkg/metrics"
)

const maxBodySize = 1 << 20

// Config points the client at the aggregator endpoints.
type Config struct {
	QuoteURL    string
	SwapURL     string
	PriceURL    string
	SlippageBps int
	Timeout     time.Duration
}

// Client calls the aggregator. All calls share one circuit breaker per API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	quoteBreaker *apperrors.CircuitBreaker
	swapBreaker  *apperrors.CircuitBreaker
	priceBreaker *apperrors.CircuitBreaker
}

func New(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	log = log.With(slog.String("component", "jupiter"))
	settings := apperrors.BreakerSettings{
		IsFailure: countsAgainstBreaker,
		OnStateChange: func(name string, from, to apperrors.BreakerState) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.SetBreakerState(name, int(to))
		},
	}

	return &Client{
		cfg:          cfg,
		http:         httpClient,
		log:          log,
		quoteBreaker: apperrors.NewCircuitBreaker("jupiter_quote", settings),
		swapBreaker:  apperrors.NewCircuitBreaker("jupiter_swap", settings),
		priceBreaker: apperrors.NewCircuitBreaker("jupiter_price", settings),
	}
}

// QuoteRequest asks for a route converting Amount (smallest units) of InputMint.
type QuoteRequest struct {
	InputMint  solana.PublicKey
	OutputMint solana.PublicKey
	Amount     uint64
	// SlippageBps overrides the configured default when positive.
	SlippageBps int
}

// Quote is the summary of a route plus the raw payload needed to build the swap.
type Quote struct {
	InAmount    uint64
	OutAmount   uint64
	FeeAmount   uint64
	FeeMint     solana.PublicKey
	SlippageBps int
	Label       string
	Raw         json.RawMessage
}

// Quote fetches a priced route. An empty route plan is an UpstreamError.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = c.cfg.SlippageBps
	}

	params := url.Values{}
	params.Set("inputMint", req.InputMint.String())
	params.Set("outputMint", req.OutputMint.String())
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	if slippage > 0 {
		params.Set("slippageBps", strconv.Itoa(slippage))
	}

	var raw json.RawMessage
	err := c.quoteBreaker.Call(func() error {
		return c.do(ctx, "quote", http.MethodGet, c.cfg.QuoteURL+"?"+params.Encode(), nil, &raw)
	})
	if err != nil {
		return nil, breakerError("quote", err)
	}

	return parseQuote(raw)
}

func parseQuote(raw json.RawMessage) (*Quote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.NewUpstreamError("quote", fmt.Errorf("decode quote: %w", err))
	}
	if len(resp.RoutePlan) == 0 {
		return nil, apperrors.NewUpstreamError("quote", errors.New("no route found"))
	}

	first := resp.RoutePlan[0].SwapInfo
	out := uint64(resp.OutAmount)
	if out == 0 {
		out = uint64(resp.RoutePlan[len(resp.RoutePlan)-1].SwapInfo.OutAmount)
	}
	if out == 0 {
		return nil, apperrors.NewUpstreamError("quote", errors.New("quote has zero output"))
	}

	q := &Quote{
		InAmount:    uint64(resp.InAmount),
		OutAmount:   out,
		FeeAmount:   uint64(first.FeeAmount),
		SlippageBps: resp.SlippageBps,
		Label:       routeLabel(resp.RoutePlan),
		Raw:         raw,
	}
	if first.FeeMint != "" {
		if mint, err := solana.PublicKeyFromBase58(first.FeeMint); err == nil {
			q.FeeMint = mint
		}
	}

	return q, nil
}

// routeLabel joins the venue labels of each hop, skipping consecutive repeats.
func routeLabel(plan []routePlanStep) string {
	labels := make([]string, 0, len(plan))
	for _, step := range plan {
		label := step.SwapInfo.Label
		if label == "" || (len(labels) > 0 && labels[len(labels)-1] == label) {
			continue
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, " → ")
}

// SwapTransaction is an unsigned-by-user transaction template.
type SwapTransaction struct {
	// Transaction is base64 encoded.
	Transaction          string
	LastValidBlockHeight uint64
}

// BuildSwap asks the aggregator to build the swap transaction for a previously fetched quote.
// Native SOL is wrapped and unwrapped automatically.
func (c *Client) BuildSwap(ctx context.Context, quote json.RawMessage, user solana.PublicKey) (*SwapTransaction, error) {
	body, err := json.Marshal(swapRequest{
		QuoteResponse:    quote,
		UserPublicKey:    user.String(),
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("encode swap request: %w", err))
	}

	var resp swapResponse
	err = c.swapBreaker.Call(func() error {
		return c.do(ctx, "swap", http.MethodPost, c.cfg.SwapURL, body, &resp)
	})
	if err != nil {
		return nil, breakerError("swap", err)
	}
	if resp.SwapTransaction == "" {
		return nil, apperrors.NewUpstreamError("swap", errors.New("empty swapTransaction"))
	}

	return &SwapTransaction{
		Transaction:          resp.SwapTransaction,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

// Price returns the USDC price of symbol. A symbol absent from the response is an UpstreamError.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("ids", symbol)

	var resp priceResponse
	err := c.priceBreaker.Call(func() error {
		return c.do(ctx, "price", http.MethodGet, c.cfg.PriceURL+"?"+params.Encode(), nil, &resp)
	})
	if err != nil {
		return decimal.Decimal{}, breakerError("price", err)
	}

	entry, ok := resp.Data[symbol]
	if !ok {
		for key, candidate := range resp.Data {
			if strings.EqualFold(key, symbol) {
				entry, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return decimal.Decimal{}, apperrors.NewUpstreamError("price", fmt.Errorf("no price for %s", symbol))
	}

	return entry.Price, nil
}

func (c *Client) do(ctx context.Context, api, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("build %s request: %w", api, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("jupiter_"+api, err, started)
		return apperrors.NewNetworkError(api, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.ObserveUpstream("jupiter_"+api, err, started)
		return apperrors.NewNetworkError(api, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
		metrics.ObserveUpstream("jupiter_"+api, err, started)
		return apperrors.NewUpstreamError(api, err)
	}
	metrics.ObserveUpstream("jupiter_"+api, nil, started)

	if raw, ok := out.(*json.RawMessage); ok {
		if len(bytes.TrimSpace(data)) == 0 {
			return apperrors.NewUpstreamError(api, errors.New("empty response"))
		}
		*raw = append((*raw)[:0], data...)
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewUpstreamError(api, fmt.Errorf("decode response: %w", err))
	}

	c.log.DebugContext(ctx, "upstream call", slog.String("api", api), slog.Duration("took", time.Since(started)))
	return nil
}

// countsAgainstBreaker ignores caller cancellations.
func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func breakerError(api string, err error) error {
	if errors.Is(err, apperrors.ErrCircuitOpen) {
		return apperrors.NewUpstreamError(api, err)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewUpstreamError(api, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
