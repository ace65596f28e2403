// internal/billing/calculator.go
package billing

import "github.com/shopspring/decimal"

// Result holds the outcome of a billing computation for one session.
type Result struct {
	BilledMinutes      int64           `json:"billed_minutes"`
	ChargedAmount      decimal.Decimal `json:"charged_amount"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	ProviderEarning    decimal.Decimal `json:"provider_earning"`
}

// Compute converts an elapsed duration into billed minutes, the charged
// amount and the platform/provider split. It is a pure function: no state,
// no I/O, deterministic given its inputs.
//
// Billed minutes are the ceiling of durationSeconds/60 with a floor of one
// minute; a session that never accrued time bills zero. The provider
// earning is derived by subtraction from the charged amount so that
// commission + earning always equals the charge exactly.
func Compute(durationSeconds int64, ratePerMinute decimal.Decimal, commissionPercent int64) Result {
	if durationSeconds <= 0 {
		return Result{
			BilledMinutes:      0,
			ChargedAmount:      decimal.Zero,
			PlatformCommission: decimal.Zero,
			ProviderEarning:    decimal.Zero,
		}
	}

	minutes := (durationSeconds + 59) / 60
	if minutes < 1 {
		minutes = 1
	}

	charged := ratePerMinute.Mul(decimal.NewFromInt(minutes))
	commission := charged.
		Mul(decimal.NewFromInt(commissionPercent)).
		Div(decimal.NewFromInt(100)).
		Floor()
	earning := charged.Sub(commission)

	return Result{
		BilledMinutes:      minutes,
		ChargedAmount:      charged,
		PlatformCommission: commission,
		ProviderEarning:    earning,
	}
}

// MaxDurationSeconds returns the longest whole-minute duration the given
// available balance can fund at ratePerMinute, in seconds.
func MaxDurationSeconds(available, ratePerMinute decimal.Decimal) int64 {
	if ratePerMinute.LessThanOrEqual(decimal.Zero) || available.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	minutes := available.Div(ratePerMinute).Floor().IntPart()
	return minutes * 60
}
