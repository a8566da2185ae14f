package jupiter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/token"
)

const sampleQuote = `{
  "inputMint": "So11111111111111111111111111111111111111112",
  "inAmount": "10000000000",
  "outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
  "outAmount": "9950000000",
  "slippageBps": 50,
  "routePlan": [
    {"swapInfo": {"label": "Orca", "inAmount": "10000000000", "outAmount": "9950000000",
      "feeAmount": "5000", "feeMint": "So11111111111111111111111111111111111111112"}, "percent": 100}
  ]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		QuoteURL:    srv.URL + "/quote",
		SwapURL:     srv.URL + "/swap",
		PriceURL:    srv.URL + "/price",
		SlippageBps: 50,
	}, srv.Client(), testLogger())
}

func TestQuoteParsesRoute(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, token.SOL.Mint.String(), q.Get("inputMint"))
		assert.Equal(t, token.USDC.Mint.String(), q.Get("outputMint"))
		assert.Equal(t, "10000000000", q.Get("amount"))
		assert.Equal(t, "50", q.Get("slippageBps"))
		_, _ = io.WriteString(w, sampleQuote)
	})

	quote, err := client.Quote(t.Context(), QuoteRequest{
		InputMint:  token.SOL.Mint,
		OutputMint: token.USDC.Mint,
		Amount:     10_000_000_000,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000_000_000), quote.InAmount)
	assert.Equal(t, uint64(9_950_000_000), quote.OutAmount)
	assert.Equal(t, uint64(5000), quote.FeeAmount)
	assert.Equal(t, solana.SolMint, quote.FeeMint)
	assert.Equal(t, 50, quote.SlippageBps)
	assert.Equal(t, "Orca", quote.Label)
	assert.JSONEq(t, sampleQuote, string(quote.Raw))
}

func TestQuoteAcceptsNumericAmountsAndMultiHop(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"inAmount": 1000, "slippageBps": 100, "routePlan": [
		  {"swapInfo": {"label": "Raydium", "outAmount": 40, "feeAmount": 1}},
		  {"swapInfo": {"label": "Orca", "outAmount": 39}}]}`)
	})

	quote, err := client.Quote(t.Context(), QuoteRequest{InputMint: token.SOL.Mint, OutputMint: token.USDT.Mint, Amount: 1000})
	require.NoError(t, err)

	assert.Equal(t, uint64(39), quote.OutAmount)
	assert.Equal(t, uint64(1), quote.FeeAmount)
	assert.Equal(t, "Raydium → Orca", quote.Label)
}

func TestQuoteErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, apperrors.ErrUpstream},
		{"malformed json", http.StatusOK, `{"routePlan": [`, apperrors.ErrUpstream},
		{"empty route", http.StatusOK, `{"outAmount": "1", "routePlan": []}`, apperrors.ErrUpstream},
		{"empty body", http.StatusOK, ``, apperrors.ErrUpstream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := client.Quote(t.Context(), QuoteRequest{InputMint: token.SOL.Mint, OutputMint: token.USDC.Mint, Amount: 1})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestQuoteTransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(Config{QuoteURL: srv.URL}, nil, testLogger())
	_, err := client.Quote(t.Context(), QuoteRequest{InputMint: token.SOL.Mint, OutputMint: token.USDC.Mint, Amount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestBuildSwapSendsQuoteAndUser(t *testing.T) {
	user := solana.NewWallet().PublicKey()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, sampleQuote, string(req["quoteResponse"]))
		assert.JSONEq(t, `"`+user.String()+`"`, string(req["userPublicKey"]))
		assert.JSONEq(t, `true`, string(req["wrapAndUnwrapSol"]))

		_, _ = io.WriteString(w, `{"swapTransaction": "AQID", "lastValidBlockHeight": 4242}`)
	})

	tx, err := client.BuildSwap(t.Context(), json.RawMessage(sampleQuote), user)
	require.NoError(t, err)
	assert.Equal(t, "AQID", tx.Transaction)
	assert.Equal(t, uint64(4242), tx.LastValidBlockHeight)
}

func TestBuildSwapEmptyTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"lastValidBlockHeight": 1}`)
	})

	_, err := client.BuildSwap(t.Context(), json.RawMessage(sampleQuote), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SOL", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"data": {"SOL": {"id": "SOL", "price": 150.23}}, "timeTaken": 0.001}`)
	})

	price, err := client.Price(t.Context(), "sol")
	require.NoError(t, err)
	assert.Equal(t, "150.23", price.String())
}

func TestPriceMissingSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data": {}}`)
	})

	_, err := client.Price(t.Context(), "BONK")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 20 {
		_, _ = client.Price(t.Context(), "SOL")
	}

	_, err := client.Price(t.Context(), "SOL")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Less(t, calls, 21)
}
