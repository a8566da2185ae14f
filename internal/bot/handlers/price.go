package handlers

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/i18n"
)

// NewPriceHandler answers /price SYMBOL with the aggregator's USDC price.
func NewPriceHandler(prices Prices, texts i18n.Translator) Handler {
	return func(c telebot.Context) error {
		args := Args(c)
		if len(args) != 1 {
			return c.Send(texts.T("price.usage"))
		}
		symbol := strings.ToUpper(args[0])

		if err := c.Send(texts.F("price.fetching", symbol)); err != nil {
			return err
		}

		price, err := prices.Price(RequestContext(c), symbol)
		if err != nil {
			return err
		}
		return c.Send(texts.F("price.result", symbol, price.String()))
	}
}
