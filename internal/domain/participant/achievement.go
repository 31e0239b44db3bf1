package participant

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Level identifies an achievement tier.
type Level string

const (
	LevelBronze      Level = "bronze"
	LevelSilver      Level = "silver"
	LevelGold        Level = "gold"
	LevelPlatinum    Level = "platinum"
	LevelDiamond     Level = "diamond"
	LevelMaster      Level = "master"
	LevelGrandmaster Level = "grandmaster"
	LevelChampion    Level = "champion"
	LevelLegend      Level = "legend"
	LevelMythic      Level = "mythic"
	LevelGod         Level = "god"
)

// Tier is one row of the static achievement table. Everything except Level and
// ThresholdDays is presentation metadata the core never interprets.
type Tier struct {
	Level         Level  `json:"level"`
	ThresholdDays int    `json:"requiredDays"`
	Label         string `json:"title"`
	Description   string `json:"description"`
	Icon          string `json:"icon"`
	Treatment     string `json:"color"`
}

// tiers is sorted by ThresholdDays ascending.
var tiers = []Tier{
	{LevelBronze, 7, "🥉 Bronze Start", "First week without a slip", "Medal", "bg-gradient-to-r from-amber-400 to-orange-500"},
	{LevelSilver, 14, "🥈 Silver Restraint", "Two weeks of silence", "Award", "bg-gradient-to-r from-gray-300 to-gray-400"},
	{LevelGold, 21, "🥇 Golden Resilience", "Three weeks without a failure", "Crown", "bg-gradient-to-r from-yellow-400 to-yellow-500"},
	{LevelPlatinum, 28, "💎 Platinum Discipline", "A month of iron will", "Star", "bg-gradient-to-r from-purple-400 to-purple-600"},
	{LevelDiamond, 35, "💠 Diamond Resilience", "Five weeks of perfection", "Gem", "bg-gradient-to-r from-cyan-400 to-blue-500"},
	{LevelMaster, 42, "🛡️ Master of Restraint", "Six weeks holding the line", "Shield", "bg-gradient-to-r from-emerald-400 to-teal-500"},
	{LevelGrandmaster, 49, "🏅 Grandmaster", "Seven weeks of focus", "Trophy", "bg-gradient-to-r from-lime-400 to-green-600"},
	{LevelChampion, 56, "🔥 Champion", "Eight weeks on fire", "Flame", "bg-gradient-to-r from-red-400 to-orange-600"},
	{LevelLegend, 63, "🌟 Legend", "Nine weeks, the stuff of stories", "Sparkles", "bg-gradient-to-r from-fuchsia-400 to-pink-600"},
	{LevelMythic, 70, "⚡ Mythic", "Ten weeks beyond belief", "Zap", "bg-gradient-to-r from-indigo-400 to-violet-600"},
	{LevelGod, 77, "👑 God Mode", "Eleven weeks, untouchable", "Sun", "bg-gradient-to-r from-yellow-300 via-pink-500 to-purple-600"},
}

// Tiers returns a copy of the full table in ascending order.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// TierFor returns the highest tier whose threshold is satisfied by
// currentStreak. ok is false below the first threshold.
func TierFor(currentStreak int) (tier Tier, ok bool) {
	for i := len(tiers) - 1; i >= 0; i-- {
		if currentStreak >= tiers[i].ThresholdDays {
			return tiers[i], true
		}
	}
	return Tier{}, false
}

// NextTier returns the first tier not yet reached and how many days are left.
// ok is false once the top tier is reached.
func NextTier(currentStreak int) (tier Tier, daysLeft int, ok bool) {
	for _, t := range tiers {
		if currentStreak < t.ThresholdDays {
			return t, t.ThresholdDays - currentStreak, true
		}
	}
	return Tier{}, 0, false
}

// LookupTier finds a tier by level.
func LookupTier(level Level) (Tier, bool) {
	for _, t := range tiers {
		if t.Level == level {
			return t, true
		}
	}
	return Tier{}, false
}
