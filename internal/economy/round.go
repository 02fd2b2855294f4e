package economy

// RoundInput is everything needed to score one round.
type RoundInput struct {
	Round         int
	PreviousStock int // finalized stock of Round-1; ignored for round 0
	WaterHeight   int
	Choices       []int
}

// Earning is one participant's result for a round, in input order.
type Earning struct {
	Choice     int
	BeforeLoss float64
	AfterLoss  float64
}

// RoundOutcome is the aggregate result of a scored round.
type RoundOutcome struct {
	Round         int
	Invested      int
	IncomingStock int
	LeveeStock    int
	LeveeHeight   int
	WaterHeight   int
	FloodSeverity int
	Earnings      []Earning
}

// ScoreRound runs the full scoring pipeline:
//
//	invested  = sum(choices)
//	incoming  = IncomingStock(round, previous)
//	stock     = incoming + invested
//	height    = LeveeHeight(stock)
//	severity  = FloodSeverity(water, height)
//	earnings  = EarningAfterLoss(choice, severity) per participant
func ScoreRound(in RoundInput) RoundOutcome {
	invested := TotalInvested(in.Choices)
	incoming := IncomingStock(in.Round, in.PreviousStock)
	stock := incoming + invested
	height := LeveeHeight(stock)
	severity := FloodSeverity(in.WaterHeight, height)

	earnings := make([]Earning, len(in.Choices))
	for i, c := range in.Choices {
		earnings[i] = Earning{
			Choice:     c,
			BeforeLoss: EarningBeforeLoss(c),
			AfterLoss:  EarningAfterLoss(c, severity),
		}
	}

	return RoundOutcome{
		Round:         in.Round,
		Invested:      invested,
		IncomingStock: incoming,
		LeveeStock:    stock,
		LeveeHeight:   height,
		WaterHeight:   in.WaterHeight,
		FloodSeverity: severity,
		Earnings:      earnings,
	}
}
