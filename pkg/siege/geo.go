package siege

import "math"

// Density classifies the population density of a territory's surroundings.
type Density string

const (
	Urban    Density = "urban"
	Suburban Density = "suburban"
	Rural    Density = "rural"
)

// RadiusFor returns the claim radius in meters for a density class.
// Unknown values get the rural radius, the conservative default.
func RadiusFor(d Density) float64 {
	switch d {
	case Urban:
		return 25
	case Suburban:
		return 35
	default:
		return 50
	}
}

// Tier is a participant's distance-derived combat effectiveness class.
type Tier string

const (
	TierPhysical Tier = "physical"
	TierNearby   Tier = "nearby"
	TierRemote   Tier = "remote"
)

// Tier boundaries in meters. Boundaries are inclusive-lower: a participant
// at exactly 50m is Nearby, at exactly 1000m is Remote.
const (
	physicalMaxMeters = 50
	nearbyMaxMeters   = 1000
)

// TierFor classifies a measured distance into a participation tier.
func TierFor(distanceMeters float64) Tier {
	switch {
	case distanceMeters < physicalMaxMeters:
		return TierPhysical
	case distanceMeters < nearbyMaxMeters:
		return TierNearby
	default:
		return TierRemote
	}
}

// Multiplier returns the damage scalar for a participation tier.
func (t Tier) Multiplier() float64 {
	switch t {
	case TierPhysical:
		return 1.0
	case TierNearby:
		return 0.75
	default:
		return 0.5
	}
}

const earthRadiusMeters = 6371000

// DistanceMeters returns the great-circle distance between two coordinates
// using the haversine formula.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
