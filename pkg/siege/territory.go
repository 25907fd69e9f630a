package siege

// TerritoryState is a territory's position in the siege lifecycle.
type TerritoryState string

const (
	StateSecure     TerritoryState = "secure"
	StateContested  TerritoryState = "contested"
	StateVulnerable TerritoryState = "vulnerable"
	StateFallen     TerritoryState = "fallen"
)

// MaxBattleLosses is the number of lost battles that fells a territory.
const MaxBattleLosses = 3

// StateForLosses maps a cumulative battle-loss count to the territory state.
// Losses clamp at MaxBattleLosses; the mapping is monotonic by design.
func StateForLosses(losses int) TerritoryState {
	switch {
	case losses <= 0:
		return StateSecure
	case losses == 1:
		return StateContested
	case losses == 2:
		return StateVulnerable
	default:
		return StateFallen
	}
}

// NextLossState returns the loss count and state after the defender loses
// one more battle.
func NextLossState(losses int) (int, TerritoryState) {
	losses++
	if losses > MaxBattleLosses {
		losses = MaxBattleLosses
	}
	return losses, StateForLosses(losses)
}

// ProductionMultiplier returns the resource production scalar for a state.
// Fallen territories have no owner and produce nothing.
func ProductionMultiplier(s TerritoryState) float64 {
	switch s {
	case StateSecure:
		return 1.0
	case StateContested:
		return 0.8
	case StateVulnerable:
		return 0.5
	default:
		return 0
	}
}
