// Package progression holds the XP curve. Everything here is pure.
package progression

import "math"

// XpForLevel is the XP needed to advance from level to level+1.
func XpForLevel(level int) int64 {
	return int64(math.Round(100 * math.Pow(float64(level), 1.35)))
}

// CumulativeXp is the total XP at which level is reached.
func CumulativeXp(level int) int64 {
	var total int64
	for l := 1; l < level; l++ {
		total += XpForLevel(l)
	}
	return total
}

// LevelFromXp returns the level for a lifetime XP total. Levels start at 1.
// A level is reached once its cumulative requirement is fully met.
func LevelFromXp(totalXp int64) int {
	level := 1
	var cumulative int64
	for {
		need := XpForLevel(level)
		if cumulative+need > totalXp {
			return level
		}
		cumulative += need
		level++
	}
}

// Progress splits totalXp into XP earned inside its level and the size of that level.
func Progress(totalXp int64) (current, needed int64) {
	level := LevelFromXp(totalXp)
	return totalXp - CumulativeXp(level), XpForLevel(level)
}
