package model

import "strings"

// Tier is a quality preference level. The predefined tiers are ordered
// from highest to lowest fidelity; any other value is a custom format
// selector passed through to the fetcher untouched.
type Tier string

const (
	TierBest  Tier = "best"
	Tier1080p Tier = "1080p"
	Tier720p  Tier = "720p"
	Tier480p  Tier = "480p"
	Tier360p  Tier = "360p"
)

// Tiers lists the predefined tiers, best first.
var Tiers = []Tier{TierBest, Tier1080p, Tier720p, Tier480p, Tier360p}

// ParseTier normalizes user input such as "1080", "HD" or "" to a Tier.
// Unrecognized values are returned as custom tiers.
func ParseTier(raw string) Tier {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "", "best":
		return TierBest
	case "1080p", "1080", "hd":
		return Tier1080p
	case "720p", "720":
		return Tier720p
	case "480p", "480", "sd":
		return Tier480p
	case "360p", "360":
		return Tier360p
	default:
		return Tier(strings.TrimSpace(raw))
	}
}

// IsPredefined reports whether t is one of Tiers.
func (t Tier) IsPredefined() bool {
	return t.index() >= 0
}

// Height returns the maximum video height of a predefined tier, or 0 for
// best and custom tiers.
func (t Tier) Height() int {
	switch t {
	case Tier1080p:
		return 1080
	case Tier720p:
		return 720
	case Tier480p:
		return 480
	case Tier360p:
		return 360
	default:
		return 0
	}
}

// Downgrade returns the next lower tier. A custom tier steps to 720p.
// ok is false when t is already the lowest tier.
func (t Tier) Downgrade() (next Tier, ok bool) {
	i := t.index()
	if i < 0 {
		return Tier720p, true
	}
	if i >= len(Tiers)-1 {
		return t, false
	}
	return Tiers[i+1], true
}

func (t Tier) index() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return -1
}
