package search

// Per-leg execution cost model: a fixed overhead for the transaction plus a
// per-swap increment. Units are gas.
const (
	gasBase   = 120_000
	gasPerLeg = 110_000
)

// DeriveAllowanceBps converts current gas conditions into a flat basis-point
// allowance against a candidate's notional. gasPriceGwei is the effective gas
// price, nativePrice the value of the native token in value units, notional
// the candidate trade size in value units. A non-positive notional yields 0.
func DeriveAllowanceBps(legs int, gasPriceGwei, nativePrice, notional float64) float64 {
	if notional <= 0 || legs <= 0 {
		return 0
	}
	gasUnits := float64(gasBase + legs*gasPerLeg)
	costValue := gasUnits * gasPriceGwei * 1e-9 * nativePrice
	return costValue / notional * 10000
}
