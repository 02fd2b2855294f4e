package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveOf(s Strategy) []Strategy {
	return []Strategy{s, s, s, s, s}
}

// ---------------------------------------------------------------------------
// Determinism and carry-over
// ---------------------------------------------------------------------------

func TestSimulationIsDeterministic(t *testing.T) {
	cfg := SimConfig{Strategies: fiveOf(Constant(4))}
	a := RunSimulation(cfg)
	b := RunSimulation(cfg)
	assert.Equal(t, a.Totals, b.Totals)
	assert.Equal(t, a.Outcomes, b.Outcomes)
}

func TestSimulationCarriesStockBetweenRounds(t *testing.T) {
	res := RunSimulation(SimConfig{Strategies: fiveOf(Constant(5)), SilentMode: true})
	require.Len(t, res.Outcomes, Rounds)

	for r := 1; r < Rounds; r++ {
		want := IncomingStock(r, res.Outcomes[r-1].LeveeStock)
		assert.Equal(t, want, res.Outcomes[r].IncomingStock, "round %d", r)
	}
	assert.Empty(t, res.Events)
}

func TestSimulationFreeRidersFlood(t *testing.T) {
	res := RunSimulation(SimConfig{Strategies: fiveOf(Constant(0)), NearMiss: true})

	// stock decays to the floor of 30 (height 2) so later rounds flood
	assert.Greater(t, res.Floods, 0)
	for _, total := range res.Totals {
		assert.Equal(t, 110.0, total)
	}
	assert.Equal(t, "finish", res.Events[len(res.Events)-1].Type)
}

func TestSimulationClampsChoices(t *testing.T) {
	res := RunSimulation(SimConfig{Strategies: fiveOf(Constant(42)), SilentMode: true})
	for _, out := range res.Outcomes {
		assert.Equal(t, 5*Tokens, out.Invested)
	}
}

func TestSimulationStrategySeesPreviousOutcome(t *testing.T) {
	var seen []int
	react := func(round int, prev *RoundOutcome) int {
		if prev == nil {
			seen = append(seen, -1)
			return 5
		}
		seen = append(seen, prev.Round)
		return 5
	}
	RunSimulation(SimConfig{Strategies: []Strategy{react}, SilentMode: true})
	assert.Equal(t, []int{-1, 0, 1, 2, 3, 4, 5, 6, 7, 8}, seen)
}
