package domain

import (
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"
)

// SwapQuote is a priced route for converting InAmount of one token into another.
// Amounts are in each token's smallest unit.
type SwapQuote struct {
	InputSymbol  string           `json:"input_symbol"`
	OutputSymbol string           `json:"output_symbol"`
	InputMint    solana.PublicKey `json:"input_mint"`
	OutputMint   solana.PublicKey `json:"output_mint"`
	InAmount     uint64           `json:"in_amount"`
	OutAmount    uint64           `json:"out_amount"`
	FeeAmount    uint64           `json:"fee_amount"`
	FeeMint      solana.PublicKey `json:"fee_mint"`
	SlippageBps  int              `json:"slippage_bps"`
	Label        string           `json:"label"`
	// Raw is the provider's quote payload, passed back verbatim when building the swap.
	Raw      json.RawMessage `json:"raw"`
	QuotedAt time.Time       `json:"quoted_at"`
}
