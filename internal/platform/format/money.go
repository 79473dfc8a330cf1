package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money renders amounts for a single currency and locale.
type Money struct {
	unit    currency.Unit
	printer *message.Printer
	known   bool
	code    string
}

// NewMoney builds a formatter. Unknown currencies fall back to "<CODE> 0.00".
func NewMoney(code, locale string) Money {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	return Money{
		unit:    unit,
		printer: message.NewPrinter(tag),
		known:   err == nil,
		code:    code,
	}
}

// Format renders amount with the currency symbol and locale grouping.
func (m Money) Format(amount float64) string {
	if m.printer == nil || !m.known {
		return fmt.Sprintf("%s %.2f", m.code, amount)
	}
	return m.printer.Sprint(currency.Symbol(m.unit.Amount(amount)))
}

// Code returns the ISO currency code.
func (m Money) Code() string { return m.code }
