package consensus

import "time"

// Config holds the engine's per-phase timeout schedule.
type Config struct {
	// ProposeTimeout is the base deadline for receiving a proposal.
	ProposeTimeout time.Duration

	// PrevoteTimeout is the base deadline for the prevote phase.
	PrevoteTimeout time.Duration

	// CommitTimeout is the base deadline for the commit phase.
	CommitTimeout time.Duration

	// TimeoutDelta is added per round so later rounds wait longer.
	TimeoutDelta time.Duration

	// MaxRounds caps the rounds attempted per height.
	MaxRounds uint64
}

// DefaultConfig returns the devnet timeout schedule.
func DefaultConfig() Config {
	return Config{
		ProposeTimeout: 3 * time.Second,
		PrevoteTimeout: 2 * time.Second,
		CommitTimeout:  2 * time.Second,
		TimeoutDelta:   500 * time.Millisecond,
		MaxRounds:      10,
	}
}

// ProposeTimeoutForRound returns the propose deadline for a round:
// base + round * delta.
func (c Config) ProposeTimeoutForRound(round uint64) time.Duration {
	return c.ProposeTimeout + time.Duration(round)*c.TimeoutDelta
}

// PrevoteTimeoutForRound returns the prevote deadline for a round.
func (c Config) PrevoteTimeoutForRound(round uint64) time.Duration {
	return c.PrevoteTimeout + time.Duration(round)*c.TimeoutDelta
}

// CommitTimeoutForRound returns the commit deadline for a round.
func (c Config) CommitTimeoutForRound(round uint64) time.Duration {
	return c.CommitTimeout + time.Duration(round)*c.TimeoutDelta
}
