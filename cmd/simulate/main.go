package main

import (
	"flag"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/economy"
)

// archetype distribution
const (
	pctCooperator   = 0.30
	pctFreeRider    = 0.20
	pctReciprocator = 0.35
	// random = remainder
)

const groupSize = 5

type Archetype int

const (
	Cooperator Archetype = iota
	FreeRider
	Reciprocator
	Random
)

var archetypes = []Archetype{Cooperator, FreeRider, Reciprocator, Random}

func (a Archetype) String() string {
	return [...]string{"Cooperator", "FreeRider", "Reciprocator", "Random"}[a]
}

func drawArchetype(rng *rand.Rand) Archetype {
	r := rng.Float64()
	switch {
	case r < pctCooperator:
		return Cooperator
	case r < pctCooperator+pctFreeRider:
		return FreeRider
	case r < pctCooperator+pctFreeRider+pctReciprocator:
		return Reciprocator
	default:
		return Random
	}
}

// strategyFor builds a per-seat strategy. rng must only be used from the
// goroutine running the group.
func strategyFor(rng *rand.Rand, a Archetype) economy.Strategy {
	switch a {
	case Cooperator:
		return func(int, *economy.RoundOutcome) int { return 6 + rng.Intn(3) }
	case FreeRider:
		return func(int, *economy.RoundOutcome) int { return rng.Intn(2) }
	case Reciprocator:
		level := 5
		return func(round int, prev *economy.RoundOutcome) int {
			if prev != nil {
				if prev.FloodSeverity > 0 {
					level += 2
				} else if prev.LeveeHeight-prev.WaterHeight > 3 {
					level--
				}
			}
			level = min(max(level, 0), economy.Tokens)
			return level
		}
	default:
		return func(int, *economy.RoundOutcome) int { return rng.Intn(economy.Tokens + 1) }
	}
}

type seatResult struct {
	arch  Archetype
	total float64
}

type groupResult struct {
	nearMiss bool
	floods   int
	invested int
	seats    [groupSize]seatResult
}

func runGroup(rng *rand.Rand, nearMiss bool) groupResult {
	res := groupResult{nearMiss: nearMiss}
	strategies := make([]economy.Strategy, groupSize)
	for i := range strategies {
		a := drawArchetype(rng)
		res.seats[i].arch = a
		strategies[i] = strategyFor(rng, a)
	}

	sim := economy.RunSimulation(economy.SimConfig{
		NearMiss:   nearMiss,
		Strategies: strategies,
		SilentMode: true,
	})
	res.floods = sim.Floods
	for _, out := range sim.Outcomes {
		res.invested += out.Invested
	}
	for i, total := range sim.Totals {
		res.seats[i].total = total
	}
	return res
}

func main() {
	groups := flag.Int("groups", 20_000, "simulated groups per water schedule")
	seed := flag.Int64("seed", 42, "base random seed")
	flag.Parse()

	start := time.Now()
	total := *groups * 2
	results := make([]groupResult, total)

	workers := runtime.GOMAXPROCS(0)
	var progress atomic.Int64
	var wg sync.WaitGroup

	chunkSize := total / workers
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := lo + chunkSize
		if w == workers-1 {
			hi = total
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			localRng := rand.New(rand.NewSource(*seed + int64(lo)*7919))
			for i := lo; i < hi; i++ {
				// even indices replay the standard schedule, odd the near-miss one
				results[i] = runGroup(localRng, i%2 == 1)
				if n := progress.Add(1); total >= 10 && n%int64(total/10) == 0 {
					fmt.Printf("  ... %d/%d groups (%.0f%%)\n", n, total, float64(n)/float64(total)*100)
				}
			}
		}(lo, hi)
	}
	wg.Wait()

	printReport(results, time.Since(start), workers)
}

func printReport(results []groupResult, elapsed time.Duration, workers int) {
	fmt.Println()
	fmt.Println("=== LEVEE GAME SIMULATION REPORT ===")
	fmt.Printf("  Groups: %d  |  Rounds/group: %d  |  Seats/group: %d\n", len(results), economy.Rounds, groupSize)
	fmt.Printf("  Archetypes: Cooperator(%.0f%%) FreeRider(%.0f%%) Reciprocator(%.0f%%) Random(%.0f%%)\n",
		pctCooperator*100, pctFreeRider*100, pctReciprocator*100,
		(1-pctCooperator-pctFreeRider-pctReciprocator)*100)
	fmt.Printf("  Elapsed: %v  |  Workers: %d\n", elapsed.Round(time.Millisecond), workers)

	for _, nearMiss := range []bool{false, true} {
		label := "STANDARD SCHEDULE"
		if nearMiss {
			label = "NEAR-MISS SCHEDULE"
		}

		var floods, invested []float64
		earnings := make(map[Archetype][]float64)
		floodFree := 0
		for _, g := range results {
			if g.nearMiss != nearMiss {
				continue
			}
			floods = append(floods, float64(g.floods))
			invested = append(invested, float64(g.invested)/float64(economy.Rounds*groupSize))
			if g.floods == 0 {
				floodFree++
			}
			for _, s := range g.seats {
				earnings[s.arch] = append(earnings[s.arch], s.total)
			}
		}
		sort.Float64s(floods)
		sort.Float64s(invested)

		fmt.Println()
		fmt.Printf("--- %s ---\n", label)
		fmt.Printf("  Groups:                        %8d\n", len(floods))
		fmt.Printf("  Mean flooded rounds/group:     %8.2f\n", mean(floods))
		fmt.Printf("  90th pctl flooded rounds:      %8.0f\n", percentile(floods, 90))
		if len(floods) > 0 {
			fmt.Printf("  Flood-free groups:             %8d  (%5.1f%%)\n", floodFree, float64(floodFree)/float64(len(floods))*100)
		}
		fmt.Printf("  Mean tokens invested/seat:     %8.2f\n", mean(invested))
		fmt.Println()
		fmt.Printf("  %-13s %8s %8s %8s %8s\n", "archetype", "seats", "mean", "p10", "p90")
		for _, a := range archetypes {
			e := earnings[a]
			sort.Float64s(e)
			fmt.Printf("  %-13s %8d %8.2f %8.2f %8.2f\n", a, len(e), mean(e), percentile(e, 10), percentile(e, 90))
		}
	}
	fmt.Println()
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return sum(s) / float64(len(s))
}

func sum(s []float64) float64 {
	t := 0.0
	for _, v := range s {
		t += v
	}
	return t
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * pct / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
