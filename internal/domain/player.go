package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultName is used when a participant joins with a blank name
	DefaultName = "Anonymous"

	// MaxNameLength caps display names, in runes
	MaxNameLength = 32
)

// Participant is a connected player in a room
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewParticipant creates a participant with a normalized display name
func NewParticipant(id, name string) *Participant {
	return &Participant{
		ID:       id,
		Name:     NormalizeName(name),
		JoinedAt: time.Now(),
	}
}

// NormalizeName trims and caps a display name, defaulting blank names.
func NormalizeName(name string) string {
	name = strings.TrimSpace(normalizeText(name))
	if name == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(truncateRunes(name, MaxNameLength))
	}
	return name
}

// ParticipantInfo is the wire view of a participant
type ParticipantInfo struct {
	SID  string `json:"sid"`
	Name string `json:"name"`
}

// ToInfo converts a Participant to ParticipantInfo
func (p *Participant) ToInfo() ParticipantInfo {
	return ParticipantInfo{
		SID:  p.ID,
		Name: p.Name,
	}
}
