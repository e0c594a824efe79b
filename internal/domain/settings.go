package domain

import (
	"fmt"
	"time"
)

// Settings holds the per-game parameters chosen by the host
type Settings struct {
	Rounds           int `json:"rounds"`
	TimeLimitSeconds int `json:"time_limit"`
	CharLimit        int `json:"char_limit"`
}

// TimeLimit returns the round duration, zero when rounds are untimed
func (s Settings) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitSeconds) * time.Second
}

// Limits bound what a host may request
type Limits struct {
	MaxPlayers   int
	MaxRounds    int
	MaxTimeLimit int
	MaxCharLimit int
}

// DefaultLimits returns the default limits
func DefaultLimits() Limits {
	return Limits{
		MaxPlayers:   16,
		MaxRounds:    20,
		MaxTimeLimit: 600,
		MaxCharLimit: 2000,
	}
}

// Resolve validates requested settings and fills defaults. Zero rounds means
// one round per player. A zero character limit falls back to MaxCharLimit, so
// it only means unlimited when the server sets no maximum.
func (l Limits) Resolve(requested Settings, players int) (Settings, error) {
	s := requested
	if s.Rounds < 0 || s.TimeLimitSeconds < 0 || s.CharLimit < 0 {
		return Settings{}, fmt.Errorf("%w: values must not be negative", ErrInvalidSettings)
	}
	if s.Rounds == 0 {
		s.Rounds = max(players, 1)
	}
	if s.CharLimit == 0 {
		s.CharLimit = l.MaxCharLimit
	}
	if l.MaxRounds > 0 && s.Rounds > l.MaxRounds {
		return Settings{}, fmt.Errorf("%w: at most %d rounds", ErrInvalidSettings, l.MaxRounds)
	}
	if l.MaxTimeLimit > 0 && s.TimeLimitSeconds > l.MaxTimeLimit {
		return Settings{}, fmt.Errorf("%w: time limit is at most %d seconds", ErrInvalidSettings, l.MaxTimeLimit)
	}
	if l.MaxCharLimit > 0 && s.CharLimit > l.MaxCharLimit {
		return Settings{}, fmt.Errorf("%w: character limit is at most %d", ErrInvalidSettings, l.MaxCharLimit)
	}
	return s, nil
}
