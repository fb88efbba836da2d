// =============================
// File: internal/core/mode.go
// =============================
package core

// LaunchMode selects how a token's creator-fee share behaves after launch.
// Snowball and Fireball are branding over the same accumulate-and-burn
// behavior; Standard pays the creator directly per trade.
type LaunchMode uint8

const (
	ModeStandard LaunchMode = iota
	ModeSnowball
	ModeFireball
)

func (m LaunchMode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeSnowball:
		return "snowball"
	case ModeFireball:
		return "fireball"
	}
	return "unknown"
}

// Deflationary reports whether creator fees accumulate toward buybacks.
func (m LaunchMode) Deflationary() bool {
	return m == ModeSnowball || m == ModeFireball
}
