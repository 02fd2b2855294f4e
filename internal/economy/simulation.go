package economy

import "fmt"

// Strategy picks a participant's choice for a round given the outcome of the
// previous round (nil for round 0).
type Strategy func(round int, prev *RoundOutcome) int

// SimConfig fully describes a deterministic game of Rounds rounds.
type SimConfig struct {
	NearMiss   bool
	Strategies []Strategy // one per participant
	SilentMode bool       // skip event recording for Monte Carlo perf
}

type SimEvent struct {
	Round  int
	Type   string // "round", "flood", "finish"
	Detail string
}

type SimResult struct {
	Events   []SimEvent
	Outcomes []RoundOutcome
	Totals   []float64 // cumulative earnings per participant
	Floods   int       // rounds with severity > 0
}

// RunSimulation plays every round through ScoreRound with no timers and no
// I/O. Processing order per round:
//  1. Collect choices from strategies (invalid choices are clamped)
//  2. Score the round against the room's water schedule
//  3. Accumulate earnings, rounded to cents
func RunSimulation(cfg SimConfig) SimResult {
	res := SimResult{Totals: make([]float64, len(cfg.Strategies))}
	var prev *RoundOutcome
	prevStock := 0

	for r := 0; r < Rounds; r++ {
		choices := make([]int, len(cfg.Strategies))
		for i, s := range cfg.Strategies {
			choices[i] = min(max(s(r, prev), 0), Tokens)
		}

		out := ScoreRound(RoundInput{
			Round:         r,
			PreviousStock: prevStock,
			WaterHeight:   WaterHeight(cfg.NearMiss, r),
			Choices:       choices,
		})
		for i, e := range out.Earnings {
			res.Totals[i] = Round2(res.Totals[i] + e.AfterLoss)
		}
		if out.FloodSeverity > 0 {
			res.Floods++
		}

		if !cfg.SilentMode {
			res.Events = append(res.Events, SimEvent{
				Round:  r,
				Type:   "round",
				Detail: fmt.Sprintf("invested=%d stock=%d height=%d water=%d", out.Invested, out.LeveeStock, out.LeveeHeight, out.WaterHeight),
			})
			if out.FloodSeverity > 0 {
				res.Events = append(res.Events, SimEvent{
					Round:  r,
					Type:   "flood",
					Detail: fmt.Sprintf("severity=%d%%", out.FloodSeverity),
				})
			}
		}

		res.Outcomes = append(res.Outcomes, out)
		prevStock = out.LeveeStock
		prev = &res.Outcomes[len(res.Outcomes)-1]
	}

	if !cfg.SilentMode {
		res.Events = append(res.Events, SimEvent{
			Round:  Rounds - 1,
			Type:   "finish",
			Detail: fmt.Sprintf("floods=%d", res.Floods),
		})
	}
	return res
}

// Constant always invests c.
func Constant(c int) Strategy {
	return func(int, *RoundOutcome) int { return c }
}
