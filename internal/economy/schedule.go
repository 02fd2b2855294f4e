package economy

// Rounds is the number of decision rounds in a game.
const Rounds = 10

// Water-height schedules indexed by round. The near-miss schedule puts a
// surge at round 5 (index 4) that a typical levee only just holds back.
var (
	DefaultWaterHeights  = [Rounds]int{6, 10, 4, 14, 8, 12, 16, 6, 18, 10}
	NearMissWaterHeights = [Rounds]int{6, 10, 4, 14, 17, 8, 12, 6, 18, 10}
)

// WaterSchedule returns the schedule for a room.
func WaterSchedule(nearMiss bool) [Rounds]int {
	if nearMiss {
		return NearMissWaterHeights
	}
	return DefaultWaterHeights
}

// WaterHeight returns the scheduled water height for a round, or 0 when the
// round is out of range.
func WaterHeight(nearMiss bool, round int) int {
	if round < 0 || round >= Rounds {
		return 0
	}
	return WaterSchedule(nearMiss)[round]
}
