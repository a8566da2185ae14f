package swap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/raybot/internal/chain"
	"github.com/Proton-105/raybot/internal/domain"
	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/jupiter"
	"github.com/Proton-105/raybot/internal/state"
	"github.com/Proton-105/raybot/internal/token"
	"github.com/Proton-105/raybot/internal/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAggregator struct {
	mu sync.Mutex

	quote    *jupiter.Quote
	quoteErr error
	quoteReq []jupiter.QuoteRequest

	// template returns the swap transaction for the given user.
	template func(user solana.PublicKey) string
	buildErr error
	built    []json.RawMessage
}

func (f *fakeAggregator) Quote(_ context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.quoteReq = append(f.quoteReq, req)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	q := *f.quote
	return &q, nil
}

func (f *fakeAggregator) BuildSwap(_ context.Context, raw json.RawMessage, user solana.PublicKey) (*jupiter.SwapTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.built = append(f.built, raw)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &jupiter.SwapTransaction{Transaction: f.template(user), LastValidBlockHeight: 100}, nil
}

type fakeChain struct {
	mu sync.Mutex

	sent       [][]byte
	sendErr    error
	confirmErr error
	sig        solana.Signature
}

func (f *fakeChain) Send(_ context.Context, raw []byte, opts chain.SendOptions) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !opts.SkipPreflight || !opts.Retry {
		return solana.Signature{}, errors.New("swap broadcast must skip preflight and retry")
	}
	f.sent = append(f.sent, raw)
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return f.sig, nil
}

func (f *fakeChain) AwaitConfirmation(context.Context, solana.Signature, uint64) error {
	return f.confirmErr
}

type recorder struct {
	mu      sync.Mutex
	records []*domain.Transaction
}

func (r *recorder) Record(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, tx)
	return nil
}

// signerTemplate builds an unsigned one-signer transaction paid by payer.
func signerTemplate(payer solana.PublicKey) string {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer, solana.NewWallet().PublicKey()).Build()},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(payer),
	)
	if err != nil {
		panic(err)
	}
	tx.Signatures = make([]solana.Signature, 1)

	encoded, err := tx.ToBase64()
	if err != nil {
		panic(err)
	}
	return encoded
}

type fixture struct {
	orch     *Orchestrator
	agg      *fakeAggregator
	chain    *fakeChain
	recorder *recorder
	wallets  *wallet.Registry
	tokens   *token.Registry
	sessions state.StateMachine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		agg: &fakeAggregator{
			quote: &jupiter.Quote{
				InAmount:    10_000_000_000,
				OutAmount:   9_950_000_000,
				FeeAmount:   5000,
				FeeMint:     token.SOL.Mint,
				SlippageBps: 50,
				Label:       "Orca",
				Raw:         json.RawMessage(`{"id":"first"}`),
			},
			template: signerTemplate,
		},
		chain:    &fakeChain{sig: solana.Signature{9, 9, 9}},
		recorder: &recorder{},
		wallets:  wallet.NewRegistry(wallet.NewMemoryStore(), testLogger()),
		tokens:   token.Default(),
		sessions: state.NewStateMachine(state.NewMemoryStorage(), nil, testLogger()),
	}
	f.orch = NewOrchestrator(f.tokens, f.wallets, f.sessions, f.agg, f.chain, f.recorder, testLogger())
	return f
}

func (f *fixture) user(t *testing.T, id int64) *wallet.Wallet {
	t.Helper()

	w, _, err := f.wallets.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	return w
}

func TestRequestQuoteCachesQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	quote, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "USDC")
	require.NoError(t, err)

	require.Len(t, f.agg.quoteReq, 1)
	assert.Equal(t, token.SOL.Mint, f.agg.quoteReq[0].InputMint)
	assert.Equal(t, token.USDC.Mint, f.agg.quoteReq[0].OutputMint)
	assert.Equal(t, uint64(10_000_000_000), f.agg.quoteReq[0].Amount)

	assert.Equal(t, "SOL", quote.InputSymbol)
	assert.Equal(t, "USDC", quote.OutputSymbol)

	active, err := f.orch.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, quote.Raw, active.Raw)
}

func TestRequestQuoteUnsupportedTokenLeavesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	require.NoError(t, err)

	_, err = f.orch.RequestQuote(ctx, 1, "10", "sol", "bonk")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedToken)
	assert.Len(t, f.agg.quoteReq, 1)

	active, err := f.orch.Active(ctx, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"first"}`, string(active.Raw))
}

func TestRequestQuoteInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	for _, amount := range []string{"abc", "0", "-1", "0.0000000001"} {
		_, err := f.orch.RequestQuote(ctx, 1, amount, "sol", "usdc")
		assert.ErrorIs(t, err, apperrors.ErrValidation, amount)
	}

	_, err := f.orch.RequestQuote(ctx, 1, "1", "usdc", "USDC")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, f.agg.quoteReq)
}

func TestRequestQuoteUpstreamFailureLeavesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	require.NoError(t, err)

	f.agg.quoteErr = apperrors.NewNetworkError("quote", errors.New("connection reset"))
	_, err = f.orch.RequestQuote(ctx, 1, "5", "usdt", "sol")
	assert.ErrorIs(t, err, apperrors.ErrNetwork)

	active, err := f.orch.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "SOL", active.InputSymbol)
}

func TestConfirmWithoutQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.user(t, 2)

	_, err := f.orch.RequestQuote(ctx, 2, "10", "sol", "usdc")
	require.NoError(t, err)

	_, err = f.orch.Confirm(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveQuote)
	assert.Empty(t, f.agg.built)

	_, err = f.orch.Active(ctx, 2)
	assert.NoError(t, err)
}

func TestRequestQuoteRequiresWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	assert.ErrorIs(t, err, apperrors.ErrNoWallet)
	assert.Empty(t, f.agg.quoteReq)

	_, err = f.orch.Active(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveQuote)
}

func TestConfirmWithoutWalletOrQuote(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Confirm(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveQuote)
	assert.Empty(t, f.agg.built)
}

func TestConfirmExecutesLatestQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.user(t, 1)

	_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	require.NoError(t, err)

	f.agg.quote.Raw = json.RawMessage(`{"id":"second"}`)
	_, err = f.orch.RequestQuote(ctx, 1, "20", "sol", "usdt")
	require.NoError(t, err)

	result, err := f.orch.Confirm(ctx, 1)
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, f.chain.sig, result.Signature)
	assert.Equal(t, "USDT", result.Quote.OutputSymbol)

	require.Len(t, f.agg.built, 1)
	assert.JSONEq(t, `{"id":"second"}`, string(f.agg.built[0]))

	require.Len(t, f.chain.sent, 1)
	tx, err := solana.TransactionFromBytes(f.chain.sent[0])
	require.NoError(t, err)
	assert.NoError(t, tx.VerifySignatures())
	assert.True(t, tx.IsSigner(w.PublicKey))

	session, err := f.orch.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.StateExecuted, session.CurrentState)
	assert.Equal(t, f.chain.sig.String(), session.Signature)

	_, err = f.orch.Confirm(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveQuote)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.StatusConfirmed, f.recorder.records[0].Status)
	assert.Equal(t, "20", f.recorder.records[0].Amount)
}

func TestConfirmStageFailures(t *testing.T) {
	cases := []struct {
		name      string
		setup     func(f *fixture)
		stage     string
		recorded  bool
		retryable bool
	}{
		{
			name:  "build",
			setup: func(f *fixture) { f.agg.buildErr = apperrors.NewUpstreamError("swap", errors.New("500")) },
			stage: StageBuild,
		},
		{
			name:  "decode",
			setup: func(f *fixture) { f.agg.template = func(solana.PublicKey) string { return "!!not base64!!" } },
			stage: StageDecode,
		},
		{
			name: "sign",
			setup: func(f *fixture) {
				other := solana.NewWallet().PublicKey()
				f.agg.template = func(solana.PublicKey) string { return signerTemplate(other) }
			},
			stage: StageSign,
		},
		{
			name:  "broadcast",
			setup: func(f *fixture) { f.chain.sendErr = apperrors.NewNetworkError("sendTransaction", errors.New("eof")) },
			stage: StageBroadcast,
		},
		{
			name:     "confirm failed on chain",
			setup:    func(f *fixture) { f.chain.confirmErr = chain.ErrTransactionFailed },
			stage:    StageConfirm,
			recorded: true,
		},
		{
			name:     "confirm expired",
			setup:    func(f *fixture) { f.chain.confirmErr = chain.ErrBlockhashExpired },
			stage:    StageConfirm,
			recorded: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.user(t, 1)
			tc.setup(f)

			_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
			require.NoError(t, err)

			_, err = f.orch.Confirm(ctx, 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSwapExecution)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.stage, appErr.Details["stage"])

			session, err := f.orch.Session(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, state.StateFailed, session.CurrentState)
			assert.Equal(t, tc.stage, session.Stage)
			assert.Nil(t, session.Quote)

			assert.Equal(t, tc.recorded, len(f.recorder.records) == 1)
		})
	}
}

func TestConfirmTimeoutIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.chain.confirmErr = chain.ErrConfirmTimeout

	_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	require.NoError(t, err)

	result, err := f.orch.Confirm(ctx, 1)
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, f.chain.sig, result.Signature)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.StatusPending, f.recorder.records[0].Status)

	session, err := f.orch.Session(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.StateExecuted, session.CurrentState)
	assert.True(t, session.Pending)

	_, err = f.orch.RequestQuote(ctx, 1, "1", "sol", "usdc")
	require.NoError(t, err)
	session, err = f.orch.Session(ctx, 1)
	require.NoError(t, err)
	assert.False(t, session.Pending)
}

func TestCancelEvictsQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	cancelled, err := f.orch.Cancel(ctx, 1)
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	require.NoError(t, err)

	cancelled, err = f.orch.Cancel(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cancelled)

	_, err = f.orch.Active(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveQuote)

	_, err = f.orch.Confirm(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveQuote)
	assert.Empty(t, f.agg.built)
}

func TestConcurrentConfirmsExecuteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	_, err := f.orch.RequestQuote(ctx, 1, "10", "sol", "usdc")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		noQuote int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Confirm(ctx, 1)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrNoActiveQuote):
				noQuote++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, noQuote)
	assert.Len(t, f.chain.sent, 1)
}

func TestSummarizeScenario(t *testing.T) {
	quote := &domain.SwapQuote{
		InputSymbol:  "SOL",
		OutputSymbol: "USDC",
		InputMint:    token.SOL.Mint,
		OutputMint:   token.USDC.Mint,
		InAmount:     10_000_000_000,
		OutAmount:    9_950_000_000,
		FeeAmount:    5000,
		FeeMint:      token.SOL.Mint,
		SlippageBps:  50,
		Label:        "Orca",
		QuotedAt:     time.Now(),
	}

	assert.Equal(t, Summary{
		From:        "10 SOL",
		To:          "9950 USDC",
		Slippage:    "50%",
		Fees:        "0.000005 SOL",
		MarketMaker: "Orca",
	}, Summarize(quote, token.Default()))
}

func TestSummarizeUnknownFeeMint(t *testing.T) {
	quote := &domain.SwapQuote{
		InputSymbol: "USDC", OutputSymbol: "SOL",
		InputMint: token.USDC.Mint, OutputMint: token.SOL.Mint,
		InAmount: 2_500_000, OutAmount: 15_000_000,
		FeeAmount: 1000, FeeMint: solana.NewWallet().PublicKey(),
	}

	s := Summarize(quote, token.Default())
	assert.Equal(t, "2.5 USDC", s.From)
	assert.Equal(t, "0.015 SOL", s.To)
	assert.Equal(t, "0.000001 SOL", s.Fees)
	assert.Equal(t, "unknown", s.MarketMaker)
}
