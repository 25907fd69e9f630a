package siege

import "testing"

func TestStateForLossesMonotonic(t *testing.T) {
	order := map[TerritoryState]int{
		StateSecure:     0,
		StateContested:  1,
		StateVulnerable: 2,
		StateFallen:     3,
	}

	prev := -1
	for losses := 0; losses <= 5; losses++ {
		sev := order[StateForLosses(losses)]
		if sev < prev {
			t.Errorf("state severity decreased at losses=%d", losses)
		}
		prev = sev
	}
}

func TestStateForLossesMapping(t *testing.T) {
	tests := []struct {
		losses int
		want   TerritoryState
	}{
		{0, StateSecure},
		{1, StateContested},
		{2, StateVulnerable},
		{3, StateFallen},
	}
	for _, tt := range tests {
		if got := StateForLosses(tt.losses); got != tt.want {
			t.Errorf("StateForLosses(%d) = %s, want %s", tt.losses, got, tt.want)
		}
	}
}

func TestNextLossStateClamps(t *testing.T) {
	losses, state := NextLossState(2)
	if losses != 3 || state != StateFallen {
		t.Errorf("NextLossState(2) = %d, %s, want 3, fallen", losses, state)
	}

	// Losses never exceed the maximum.
	losses, state = NextLossState(3)
	if losses != MaxBattleLosses || state != StateFallen {
		t.Errorf("NextLossState(3) = %d, %s, want clamp at %d", losses, state, MaxBattleLosses)
	}
}

func TestProductionMultiplier(t *testing.T) {
	tests := []struct {
		state TerritoryState
		want  float64
	}{
		{StateSecure, 1.0},
		{StateContested, 0.8},
		{StateVulnerable, 0.5},
		{StateFallen, 0},
	}
	for _, tt := range tests {
		if got := ProductionMultiplier(tt.state); got != tt.want {
			t.Errorf("ProductionMultiplier(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}
