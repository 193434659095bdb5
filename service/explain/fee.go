package explain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// stroopsPerXLM is the fixed-point scale of lumens.
const stroopsPerXLM = 7

// FeeStats is a snapshot of network fee statistics, in stroops.
type FeeStats struct {
	BaseFee int64 `json:"base_fee"`
	MinFee  int64 `json:"min_fee"`
	MaxFee  int64 `json:"max_fee"`
	ModeFee int64 `json:"mode_fee"`
	P90Fee  int64 `json:"p90_fee"`
}

// FeeLevel selects a recommended per-operation fee.
type FeeLevel string

const (
	FeeLow    FeeLevel = "low"
	FeeMedium FeeLevel = "medium"
	FeeHigh   FeeLevel = "high"
)

// Recommended returns the per-operation fee, in stroops, to bid at level.
// Unknown levels get the medium recommendation.
func (f FeeStats) Recommended(level FeeLevel) int64 {
	switch level {
	case FeeLow:
		return f.BaseFee
	case FeeHigh:
		return max(f.P90Fee, f.ModeFee)
	default:
		return max(f.ModeFee, f.BaseFee)
	}
}

// Fee comparison bases.
const (
	FeeBasisBase = "base_fee"
	FeeBasisMode = "mode_fee"
	FeeBasisP90  = "p90_fee"
)

// FeePolicy controls how a charged fee is judged.
type FeePolicy struct {
	// Basis picks the per-operation reference fee: base_fee, mode_fee or p90_fee.
	Basis string
	// HighMultiplier is the multiple of the reference at which the fee is
	// called out as unusually high.
	HighMultiplier int
}

// DefaultFeePolicy compares against the network base fee and flags fees at
// five times the reference or more.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{Basis: FeeBasisBase, HighMultiplier: 5}
}

func (p FeePolicy) reference(stats FeeStats) (int64, string) {
	switch p.Basis {
	case FeeBasisMode:
		return stats.ModeFee, "most common network fee"
	case FeeBasisP90:
		return stats.P90Fee, "90th percentile network fee"
	default:
		return stats.BaseFee, "network base fee"
	}
}

// FormatXLM renders a stroop amount as lumens with all seven decimals.
func FormatXLM(stroops int64) string {
	return decimal.New(stroops, -stroopsPerXLM).StringFixed(stroopsPerXLM)
}

// ExplainFee compares the fee charged for opCount operations with the
// reference fee selected by policy. With no operations the reference is zero
// and no multiple is reported.
func ExplainFee(feeCharged int64, opCount int, stats FeeStats, policy FeePolicy) string {
	perOp, label := policy.reference(stats)
	ops := int64(max(opCount, 0))
	expected := perOp * ops

	verdict := "at"
	switch {
	case feeCharged > expected:
		verdict = "above"
	case feeCharged < expected:
		verdict = "below"
	}

	opWord := "operations"
	if ops == 1 {
		opWord = "operation"
	}

	s := fmt.Sprintf("A fee of %s XLM was charged. This is %s the %s of %s XLM for %d %s.",
		FormatXLM(feeCharged), verdict, label, FormatXLM(expected), ops, opWord)

	if expected > 0 && policy.HighMultiplier > 0 && feeCharged >= expected*int64(policy.HighMultiplier) {
		multiple := decimal.NewFromInt(feeCharged).Div(decimal.NewFromInt(expected)).Round(1)
		s += fmt.Sprintf(" It is %sx the expected fee.", multiple.String())
	}
	return s
}
