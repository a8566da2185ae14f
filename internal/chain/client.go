// Package chain talks to a Solana JSON-RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/pkg/metrics"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = solana.LAMPORTS_PER_SOL

var (
	ErrConfirmTimeout    = errors.New("transaction confirmation timed out")
	ErrBlockhashExpired  = errors.New("blockhash expired before confirmation")
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// RPC is the subset of *rpc.Client the bot uses.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

var _ RPC = (*rpc.Client)(nil)

// Options tunes submission and confirmation.
type Options struct {
	Commitment     rpc.CommitmentType
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	// NodeMaxRetries is forwarded as sendTransaction maxRetries.
	NodeMaxRetries uint
	Broadcast      apperrors.RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.Commitment == "" {
		o.Commitment = rpc.CommitmentConfirmed
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Broadcast.Attempts == 0 {
		o.Broadcast = apperrors.DefaultRetryPolicy()
	}
	return o
}

// Blockhash anchors a transaction's validity window.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// SendOptions controls one submission.
type SendOptions struct {
	SkipPreflight bool
	// Retry enables client-side rebroadcast on transport errors.
	Retry bool
}

// Client is a thin adapter over the RPC node with error classification and metrics.
type Client struct {
	rpc  RPC
	log  *slog.Logger
	opts Options
}

// New dials nothing; rpc.New only records the endpoint.
func New(endpoint string, opts Options, log *slog.Logger) *Client {
	return NewWithRPC(rpc.New(endpoint), opts, log)
}

func NewWithRPC(r RPC, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		rpc:  r,
		log:  log.With(slog.String("component", "chain")),
		opts: opts.withDefaults(),
	}
}

// Balance returns the lamport balance of account.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	started := time.Now()
	res, err := c.rpc.GetBalance(ctx, account, c.opts.Commitment)
	metrics.ObserveUpstream("rpc_get_balance", err, started)
	if err != nil {
		return 0, classify("getBalance", err)
	}
	if res == nil {
		return 0, apperrors.NewUpstreamError("getBalance", errors.New("empty result"))
	}
	return res.Value, nil
}

// LatestBlockhash returns a fresh blockhash at the configured commitment.
func (c *Client) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	started := time.Now()
	res, err := c.rpc.GetLatestBlockhash(ctx, c.opts.Commitment)
	metrics.ObserveUpstream("rpc_get_latest_blockhash", err, started)
	if err != nil {
		return Blockhash{}, classify("getLatestBlockhash", err)
	}
	if res == nil || res.Value == nil {
		return Blockhash{}, apperrors.NewUpstreamError("getLatestBlockhash", errors.New("empty result"))
	}
	return Blockhash{Hash: res.Value.Blockhash, LastValidBlockHeight: res.Value.LastValidBlockHeight}, nil
}

// Send broadcasts a serialized, fully signed transaction.
// With opts.Retry, transport failures resend the same signed bytes under the broadcast policy.
func (c *Client) Send(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error) {
	maxRetries := c.opts.NodeMaxRetries
	txOpts := rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: c.opts.Commitment,
		MaxRetries:          &maxRetries,
	}

	send := func() (solana.Signature, error) {
		started := time.Now()
		sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, txOpts)
		metrics.ObserveUpstream("rpc_send_transaction", err, started)
		if err != nil {
			return solana.Signature{}, classify("sendTransaction", err)
		}
		return sig, nil
	}

	if !opts.Retry {
		return send()
	}

	policy := c.opts.Broadcast
	policy.Notify = func(err error, next time.Duration) {
		c.log.WarnContext(ctx, "broadcast failed, retrying", slog.Any("error", err), slog.Duration("backoff", next))
	}
	return apperrors.Retry(ctx, policy, send)
}

// AwaitConfirmation polls the signature until it reaches the configured commitment,
// fails on chain, outlives lastValidBlockHeight, or the confirm timeout passes.
// A zero lastValidBlockHeight disables the expiry check.
func (c *Client) AwaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			c.log.WarnContext(ctx, "signature status check failed", slog.String("signature", sig.String()), slog.Any("error", err))
		case status == StatusFailed:
			return ErrTransactionFailed
		case status == StatusConfirmed:
			return nil
		case lastValidBlockHeight > 0:
			height, err := c.rpc.GetBlockHeight(ctx, c.opts.Commitment)
			if err == nil && height > lastValidBlockHeight {
				return ErrBlockhashExpired
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrConfirmTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status is the coarse outcome of a submitted transaction.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// SignatureStatus reports where sig stands, searching ledger history.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (Status, error) {
	started := time.Now()
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	metrics.ObserveUpstream("rpc_get_signature_statuses", err, started)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return StatusUnknown, nil
		}
		return StatusUnknown, classify("getSignatureStatuses", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return StatusUnknown, nil
	}

	st := res.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}
	if c.reached(st.ConfirmationStatus) {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

func (c *Client) reached(got rpc.ConfirmationStatusType) bool {
	switch got {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return c.opts.Commitment != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return c.opts.Commitment == rpc.CommitmentProcessed
	default:
		return false
	}
}

// Ping checks the node answers; used by health checks.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.rpc.GetBlockHeight(ctx, c.opts.Commitment); err != nil {
		return fmt.Errorf("solana rpc: %w", err)
	}
	return nil
}

// classify maps JSON-RPC errors to UpstreamError and everything else to NetworkError.
func classify(method string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return apperrors.NewUpstreamError(method, err)
	}
	return apperrors.NewNetworkError(method, err)
}
