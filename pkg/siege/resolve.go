package siege

// StructureKind identifies a building type in a territory layout.
type StructureKind string

const (
	StructureCitadelCore StructureKind = "citadel_core"
	StructureWall        StructureKind = "wall"
	StructureBarracks    StructureKind = "barracks"
	StructureWorkshop    StructureKind = "workshop"
	StructureTower       StructureKind = "tower"
	StructureStorehouse  StructureKind = "storehouse"
)

// Structure is a placed building with its health pool.
type Structure struct {
	Kind      StructureKind `json:"kind"`
	X         int           `json:"x"`
	Y         int           `json:"y"`
	BuildCost int           `json:"build_cost"`
	MaxHealth float64       `json:"max_health"`
	Health    float64       `json:"health"`
}

// MaxRounds bounds the battle simulation.
const MaxRounds = 10

// Victory thresholds checked after every round.
const (
	structureFallFraction = 0.5
	attackerRoutFraction  = 0.7
)

// Winner identifies which side won a battle.
type Winner string

const (
	WinnerAttacker Winner = "attacker"
	WinnerDefender Winner = "defender"
)

// SideReport summarizes one side's totals over the battle.
type SideReport struct {
	TroopDamageDealt     float64 `json:"troop_damage_dealt"`
	StructureDamageDealt float64 `json:"structure_damage_dealt"`
	TroopsLost           float64 `json:"troops_lost"`
}

// Breakdown is the per-side damage accounting attached to a result.
type Breakdown struct {
	Attacker           SideReport `json:"attacker"`
	Defender           SideReport `json:"defender"`
	StructureFraction  float64    `json:"structure_fraction_destroyed"`
	CitadelDestroyed   bool       `json:"citadel_destroyed"`
	AttackerLossRatio  float64    `json:"attacker_loss_ratio"`
	DefenderTroopsLeft float64    `json:"defender_troops_left"`
}

// Result is the verdict of a resolved battle.
type Result struct {
	Winner    Winner    `json:"winner"`
	Decisive  bool      `json:"decisive"`
	Rounds    int       `json:"rounds"`
	Breakdown Breakdown `json:"breakdown"`
}

// BattleInput carries everything the resolver needs. Participation
// multipliers are flat per-side scalars locked in at battle start.
type BattleInput struct {
	Attacker              Formation
	Defender              Formation
	AttackerMultiplier    float64
	DefenderMultiplier    float64
	DefenderActivityBonus float64
	Structures            []Structure
}

// sideState tracks one side's per-archetype health pools during simulation.
type sideState struct {
	pools     map[Archetype]float64
	initialHP float64
}

func newSideState(f Formation) *sideState {
	s := &sideState{pools: make(map[Archetype]float64)}
	for a, n := range f.Counts {
		if n <= 0 {
			continue
		}
		hp := float64(n) * baseStats[a].Health
		s.pools[a] = hp
		s.initialHP += hp
	}
	return s
}

// Pool iteration always follows the fixed archetype order so floating-point
// sums are bit-for-bit reproducible across runs.
func (s *sideState) totalHP() float64 {
	var total float64
	for _, a := range AllArchetypes() {
		total += s.pools[a]
	}
	return total
}

// liveCount returns the fractional number of live troops of an archetype.
func (s *sideState) liveCount(a Archetype) float64 {
	hp := s.pools[a]
	if hp <= 0 {
		return 0
	}
	return hp / baseStats[a].Health
}

func (s *sideState) lossRatio() float64 {
	if s.initialHP == 0 {
		return 1
	}
	return 1 - s.totalHP()/s.initialHP
}

// Resolve runs the deterministic turn-based simulation and returns the
// verdict. It never mutates its input; structures are copied.
func Resolve(in BattleInput) Result {
	att := newSideState(in.Attacker)
	def := newSideState(in.Defender)

	structures := make([]Structure, len(in.Structures))
	copy(structures, in.Structures)

	var breakdown Breakdown

	// An attacker that committed no troops forfeits on the spot.
	if att.initialHP == 0 {
		breakdown.AttackerLossRatio = 1
		breakdown.DefenderTroopsLeft = def.totalHP()
		return Result{Winner: WinnerDefender, Decisive: true, Rounds: 0, Breakdown: breakdown}
	}

	rounds := 0
	for round := 1; round <= MaxRounds; round++ {
		rounds = round

		// Both sides strike simultaneously from start-of-round strength.
		dmgToDef := troopDamage(att, def, in.AttackerMultiplier, in.DefenderActivityBonus)
		dmgToAtt := troopDamage(def, att, in.DefenderMultiplier, 0)
		structDmg := siegeDamage(att, in.AttackerMultiplier)

		applyTroopDamage(def, dmgToDef)
		applyTroopDamage(att, dmgToAtt)
		applyStructureDamage(structures, structDmg)

		breakdown.Attacker.TroopDamageDealt += dmgToDef
		breakdown.Attacker.StructureDamageDealt += structDmg
		breakdown.Defender.TroopDamageDealt += dmgToAtt

		// Victory conditions, in priority order.
		if citadelDestroyed(structures) {
			breakdown.CitadelDestroyed = true
			return finish(WinnerAttacker, true, rounds, att, def, structures, breakdown)
		}
		if destroyedStructureFraction(structures) >= structureFallFraction {
			return finish(WinnerAttacker, false, rounds, att, def, structures, breakdown)
		}
		if att.lossRatio() >= attackerRoutFraction {
			return finish(WinnerDefender, true, rounds, att, def, structures, breakdown)
		}
	}

	// Round limit: the defender wins by holding out, unless their force was
	// wiped out entirely before the attacker could break the structures.
	if def.totalHP() > 0 {
		return finish(WinnerDefender, false, rounds, att, def, structures, breakdown)
	}
	return finish(WinnerAttacker, false, rounds, att, def, structures, breakdown)
}

// troopDamage computes the damage one side deals to the other this round:
// per-archetype count x attack x matchup multiplier, weighted by the target
// pool shares, scaled by the participation multiplier, then reduced by the
// defending side's mitigation (defense scaled up by the activity bonus).
func troopDamage(from, to *sideState, participation, defenderBonus float64) float64 {
	targetHP := to.totalHP()
	if targetHP <= 0 {
		return 0
	}

	var raw float64
	for _, a := range AllArchetypes() {
		live := from.liveCount(a)
		if live <= 0 {
			continue
		}
		atk := baseStats[a].Attack
		for _, d := range AllArchetypes() {
			hp := to.pools[d]
			if hp <= 0 {
				continue
			}
			raw += live * atk * MatchupMultiplier(a, d) * (hp / targetHP)
		}
	}
	raw *= participation

	var mitigation float64
	for _, d := range AllArchetypes() {
		mitigation += to.liveCount(d) * baseStats[d].Defense * (1 + defenderBonus)
	}
	// Mitigation absorbs a fraction of its face value so that even
	// defense-heavy formations take chip damage.
	dmg := raw - mitigation*0.5
	if dmg < 0 {
		return 0
	}
	return dmg
}

// siegeDamage is the attacker's structure damage: siege units always deal
// full damage to structures regardless of troop matchups.
func siegeDamage(att *sideState, participation float64) float64 {
	live := att.liveCount(Siege)
	if live <= 0 {
		return 0
	}
	return live * baseStats[Siege].Attack * participation
}

// applyTroopDamage distributes damage across archetype pools proportionally
// to their remaining health.
func applyTroopDamage(s *sideState, dmg float64) {
	total := s.totalHP()
	if total <= 0 || dmg <= 0 {
		return
	}
	for _, a := range AllArchetypes() {
		hp := s.pools[a]
		if hp <= 0 {
			continue
		}
		s.pools[a] -= dmg * (hp / total)
		if s.pools[a] < 0 {
			s.pools[a] = 0
		}
	}
}

// applyStructureDamage splits damage evenly across standing structures,
// redistributing overflow from destroyed ones.
func applyStructureDamage(structures []Structure, dmg float64) {
	for dmg > 0.0001 {
		alive := 0
		for i := range structures {
			if structures[i].Health > 0 {
				alive++
			}
		}
		if alive == 0 {
			return
		}
		share := dmg / float64(alive)
		dmg = 0
		for i := range structures {
			if structures[i].Health <= 0 {
				continue
			}
			if structures[i].Health < share {
				dmg += share - structures[i].Health
				structures[i].Health = 0
			} else {
				structures[i].Health -= share
			}
		}
	}
}

func citadelDestroyed(structures []Structure) bool {
	for _, s := range structures {
		if s.Kind == StructureCitadelCore && s.Health <= 0 {
			return true
		}
	}
	return false
}

// destroyedStructureFraction is the share of buildings fully destroyed, not
// the share of structure HP lost. A half-damaged wall still stands.
func destroyedStructureFraction(structures []Structure) float64 {
	if len(structures) == 0 {
		return 0
	}
	destroyed := 0
	for _, s := range structures {
		if s.Health <= 0 {
			destroyed++
		}
	}
	return float64(destroyed) / float64(len(structures))
}

func finish(w Winner, decisive bool, rounds int, att, def *sideState, structures []Structure, breakdown Breakdown) Result {
	breakdown.Attacker.TroopsLost = att.initialHP - att.totalHP()
	breakdown.Defender.TroopsLost = def.initialHP - def.totalHP()
	breakdown.AttackerLossRatio = att.lossRatio()
	breakdown.DefenderTroopsLeft = def.totalHP()
	breakdown.StructureFraction = destroyedStructureFraction(structures)
	return Result{Winner: w, Decisive: decisive, Rounds: rounds, Breakdown: breakdown}
}
