package economy

import "math"

const (
	// Tokens is the per-round endowment a participant splits between the
	// levee and private earnings. A choice is an integer in [0, Tokens].
	Tokens = 10

	// TokenValue is what one kept token earns before flood loss.
	TokenValue = 3

	// ZeroChoiceEarning is paid for a choice of 0 and is never reduced by flooding.
	ZeroChoiceEarning = 11.0

	BaseLeveeStock = 75
	MinLeveeStock  = 30
	Depreciation   = 25

	// MaxLeveeHeight is reached at 120 stock.
	MaxLeveeHeight = 20
)

// TotalInvested sums the choices of one round.
func TotalInvested(choices []int) int {
	total := 0
	for _, c := range choices {
		total += c
	}
	return total
}

// IncomingStock is the depreciated stock carried into a round.
//
//	round 0  -> BaseLeveeStock
//	round r  -> max(MinLeveeStock, previous - Depreciation)
func IncomingStock(round int, previous int) int {
	if round == 0 {
		return BaseLeveeStock
	}
	return max(MinLeveeStock, previous-Depreciation)
}

// LeveeHeight maps stock to height in steps of 2 per 10 stock.
// Below 30 the levee has no height; from 120 upwards it is capped at 20.
func LeveeHeight(stock int) int {
	if stock < MinLeveeStock {
		return 0
	}
	h := (stock-MinLeveeStock)/10*2 + 2
	return min(h, MaxLeveeHeight)
}

// FloodSeverity returns the percentage of earnings lost when water overtops
// the levee by max(0, water-levee).
func FloodSeverity(waterHeight, leveeHeight int) int {
	gap := max(0, waterHeight-leveeHeight)
	switch {
	case gap == 0:
		return 0
	case gap <= 2:
		return 10
	case gap <= 4:
		return 30
	case gap <= 6:
		return 50
	case gap <= 8:
		return 70
	case gap <= 10:
		return 90
	default:
		return 100
	}
}

// EarningBeforeLoss is the gross earning of a choice.
func EarningBeforeLoss(choice int) float64 {
	if choice == 0 {
		return ZeroChoiceEarning
	}
	return float64((Tokens - choice) * TokenValue)
}

// EarningAfterLoss applies flood severity to a choice's gross earning,
// rounded to cents. A zero choice is exempt.
func EarningAfterLoss(choice, severity int) float64 {
	if choice == 0 {
		return ZeroChoiceEarning
	}
	return Round2(float64((Tokens-choice)*TokenValue*(100-severity)) / 100)
}

// ValidChoice reports whether c is a legal investment.
func ValidChoice(c int) bool {
	return c >= 0 && c <= Tokens
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
