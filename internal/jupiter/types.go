package jupiter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// amount decodes integer amounts sent either as JSON strings or numbers.
type amount uint64

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*a = 0
		return nil
	}

	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", data, err)
	}
	*a = amount(v)
	return nil
}

type quoteResponse struct {
	InputMint   string          `json:"inputMint"`
	InAmount    amount          `json:"inAmount"`
	OutputMint  string          `json:"outputMint"`
	OutAmount   amount          `json:"outAmount"`
	SlippageBps int             `json:"slippageBps"`
	RoutePlan   []routePlanStep `json:"routePlan"`
}

type routePlanStep struct {
	SwapInfo swapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type swapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   amount `json:"inAmount"`
	OutAmount  amount `json:"outAmount"`
	FeeAmount  amount `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type priceResponse struct {
	Data map[string]priceEntry `json:"data"`
}

type priceEntry struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}
