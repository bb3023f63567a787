package posting

import "github.com/shopspring/decimal"

// SplitInclusive divides a VAT-inclusive gross amount into its net and VAT
// parts at a single flat rate. The net is rounded to currency precision and
// the VAT side absorbs the remainder, so the parts always sum back to the
// gross exactly: 118.00 at 18% -> 100.00 + 18.00.
func SplitInclusive(gross, rate decimal.Decimal) (net, vat decimal.Decimal) {
	if rate.IsZero() {
		return gross, decimal.Zero
	}
	net = gross.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
	vat = gross.Sub(net)
	return net, vat
}
