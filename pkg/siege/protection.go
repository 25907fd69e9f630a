package siege

import "time"

// NewcomerShieldDuration is how long after signup a player cannot be attacked.
const NewcomerShieldDuration = 7 * 24 * time.Hour

// PostBattleShieldDuration is the immunity window after any battle a player
// participated in, on either side.
const PostBattleShieldDuration = 4 * time.Hour

// ReclaimCooldown is how long a fallen territory is reserved before anyone
// (previous owner included) can act on it.
const ReclaimCooldown = 24 * time.Hour

// NewcomerShielded reports whether the newcomer shield is still active.
func NewcomerShielded(shieldExpiresAt, now time.Time) bool {
	return now.Before(shieldExpiresAt)
}

// PostBattleShielded reports whether a battle that ended at endedAt still
// grants its 4-hour shield.
func PostBattleShielded(endedAt, now time.Time) bool {
	return now.Before(endedAt.Add(PostBattleShieldDuration))
}

// ActivityBonus returns the defense bonus earned by recent inactivity.
// The bonus rises with inactivity and then drops to zero at 7 days so that
// abandoned territories can be taken over. The drop is intentional.
func ActivityBonus(lastActiveAt, now time.Time) float64 {
	inactive := now.Sub(lastActiveAt)
	switch {
	case inactive < 24*time.Hour:
		return 0
	case inactive < 3*24*time.Hour:
		return 0.25
	case inactive < 7*24*time.Hour:
		return 0.5
	default:
		return 0
	}
}

// MatchVerdict is the outcome of the proportional matchmaking check.
type MatchVerdict string

const (
	MatchAllowed       MatchVerdict = "allowed"
	MatchRewardPenalty MatchVerdict = "reward_penalty"
	MatchBlocked       MatchVerdict = "blocked"
)

// RewardPenaltyScale is applied to the attacker's rewards when the power
// gap triggers a penalty rather than a block.
const RewardPenaltyScale = 0.5

// Matchmaking compares attacker and defender power ratings: a 5x or greater
// gap blocks the attack outright, a 2x or greater gap halves rewards.
// An unrated defender (zero power) never blocks.
func Matchmaking(attackerPower, defenderPower float64) MatchVerdict {
	if defenderPower <= 0 {
		return MatchAllowed
	}
	ratio := attackerPower / defenderPower
	switch {
	case ratio >= 5:
		return MatchBlocked
	case ratio >= 2:
		return MatchRewardPenalty
	default:
		return MatchAllowed
	}
}
