package ledger

import "math"

// Stripe card fee model: 2.9% of the gross plus a fixed 30 cents. Top-up
// sessions gross the charge up so the net credited amount still covers the
// toll after fees.
const (
	feePercent    = 0.029
	feeFixedCents = 30

	// MinTopUpDollars is the floor for a top-up; tolls below this are
	// grossed up to it so the charge stays above card-network minimums.
	MinTopUpDollars = 1.00
)

// ToCents converts a dollar amount to minor units, rounding to the nearest cent
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// TopUpNetDollars returns the net amount a top-up must credit: the toll, or
// the floor, whichever is larger
func TopUpNetDollars(tollAmount float64) float64 {
	return math.Max(MinTopUpDollars, tollAmount)
}

// GrossCentsForNet computes the gross charge in cents whose net, after the
// fee model, meets the requested net dollar amount
func GrossCentsForNet(netDollars float64) int64 {
	gross := (netDollars + float64(feeFixedCents)/100) / (1 - feePercent)
	return ToCents(gross)
}

// FeeCents computes the fee taken out of a gross charge in cents
func FeeCents(grossCents int64) int64 {
	return int64(math.Round(float64(grossCents)*feePercent)) + feeFixedCents
}

// NetCents returns the amount left of a gross charge after fees, clamped at
// zero: a gross that does not cover the fee nets nothing rather than going
// negative and inverting a later credit.
func NetCents(grossCents int64) int64 {
	net := grossCents - FeeCents(grossCents)
	if net < 0 {
		return 0
	}
	return net
}
