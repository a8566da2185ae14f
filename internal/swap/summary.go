package swap

import (
	"strconv"

	"github.com/Proton-105/raybot/internal/domain"
	"github.com/Proton-105/raybot/internal/token"
)

// Summary is a quote rendered in display units.
type Summary struct {
	From        string
	To          string
	Slippage    string
	Fees        string
	MarketMaker string
}

// Summarize converts a quote's smallest-unit amounts for display. Fees are shown in
// the fee mint's token, or SOL when the mint is not in the table.
func Summarize(q *domain.SwapQuote, tokens *token.Registry) Summary {
	input, _ := tokens.ByMint(q.InputMint)
	output, _ := tokens.ByMint(q.OutputMint)

	feeToken, ok := tokens.ByMint(q.FeeMint)
	if !ok {
		feeToken = token.SOL
	}

	marketMaker := q.Label
	if marketMaker == "" {
		marketMaker = "unknown"
	}

	return Summary{
		From: input.FromUnits(q.InAmount).String() + " " + q.InputSymbol,
		To:   output.FromUnits(q.OutAmount).String() + " " + q.OutputSymbol,
		// slippageBps is shown as-is with a percent sign
		Slippage:    strconv.Itoa(q.SlippageBps) + "%",
		Fees:        feeToken.FromUnits(q.FeeAmount).String() + " " + feeToken.Symbol,
		MarketMaker: marketMaker,
	}
}
