package siege

// Archetype is one of the six troop types.
type Archetype string

const (
	Infantry Archetype = "infantry"
	Archer   Archetype = "archer"
	Cavalry  Archetype = "cavalry"
	Siege    Archetype = "siege"
	Mage     Archetype = "mage"
	Guardian Archetype = "guardian"
)

// AllArchetypes returns the six archetypes in display order.
func AllArchetypes() []Archetype {
	return []Archetype{Infantry, Archer, Cavalry, Siege, Mage, Guardian}
}

// ValidArchetype reports whether a is a known troop type.
func ValidArchetype(a Archetype) bool {
	switch a {
	case Infantry, Archer, Cavalry, Siege, Mage, Guardian:
		return true
	}
	return false
}

// Stats holds a troop archetype's base combat values.
type Stats struct {
	Attack  float64
	Defense float64
	Health  float64
}

// baseStats is the fixed stat line per archetype.
var baseStats = map[Archetype]Stats{
	Infantry: {Attack: 10, Defense: 8, Health: 100},
	Archer:   {Attack: 14, Defense: 4, Health: 70},
	Cavalry:  {Attack: 16, Defense: 6, Health: 90},
	Siege:    {Attack: 8, Defense: 2, Health: 120},
	Mage:     {Attack: 18, Defense: 3, Health: 60},
	Guardian: {Attack: 6, Defense: 14, Health: 150},
}

// StatsFor returns the base stats for an archetype.
func StatsFor(a Archetype) Stats {
	return baseStats[a]
}

// Matchup damage multipliers.
const (
	strongMultiplier  = 1.5
	weakMultiplier    = 0.67
	neutralMultiplier = 1.0
)

// beats lists which archetypes each attacker is strong against. The inverse
// pairs are weak matchups; everything else is neutral.
var beats = map[Archetype][]Archetype{
	Infantry: {Archer, Siege},
	Archer:   {Cavalry, Mage},
	Cavalry:  {Siege},
	Mage:     {Infantry, Guardian},
	Guardian: {Cavalry, Infantry},
	// Siege beats no troop type; its job is structures.
}

// MatchupMultiplier returns the damage multiplier when attacker strikes
// defender: 1.5 strong, 0.67 weak, 1.0 otherwise.
func MatchupMultiplier(attacker, defender Archetype) float64 {
	for _, d := range beats[attacker] {
		if d == defender {
			return strongMultiplier
		}
	}
	for _, a := range beats[defender] {
		if a == attacker {
			return weakMultiplier
		}
	}
	return neutralMultiplier
}

// Formation is a side's committed troop composition for a battle.
type Formation struct {
	Counts map[Archetype]int `json:"counts"`
}

// TotalTroops returns the total troop count in the formation.
func (f Formation) TotalTroops() int {
	total := 0
	for _, n := range f.Counts {
		total += n
	}
	return total
}

// Power returns the formation's aggregate power rating, used by
// proportional matchmaking: troops weighted by attack+defense.
func (f Formation) Power() float64 {
	var power float64
	for _, a := range AllArchetypes() {
		s := baseStats[a]
		power += float64(f.Counts[a]) * (s.Attack + s.Defense)
	}
	return power
}

// Valid reports whether all archetypes are known and counts non-negative.
func (f Formation) Valid() bool {
	for a, n := range f.Counts {
		if !ValidArchetype(a) || n < 0 {
			return false
		}
	}
	return true
}
