package shared

import "github.com/shopspring/decimal"

// DefaultTolerance is the rounding tolerance applied to debit/credit comparisons.
var DefaultTolerance = decimal.New(1, -2)

// Balanced reports whether debit and credit agree within tolerance.
func Balanced(debit, credit, tolerance decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(tolerance)
}

// ToleranceOrDefault returns tol unless it is zero or negative.
func ToleranceOrDefault(tol decimal.Decimal) decimal.Decimal {
	if tol.IsPositive() {
		return tol
	}
	return DefaultTolerance
}
