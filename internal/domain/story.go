package domain

import (
	"fmt"
	"strings"
	"time"
)

// Turn is one contribution to a story
type Turn struct {
	Origin      string    `json:"origin"`
	Contributor string    `json:"contributor"`
	Text        string    `json:"text"`
	Round       int       `json:"round"`
	Forced      bool      `json:"forced"`
	At          time.Time `json:"at"`
}

// NewTurn creates a new turn
func NewTurn(origin, contributor, text string, round int, forced bool, at time.Time) *Turn {
	return &Turn{
		Origin:      origin,
		Contributor: contributor,
		Text:        text,
		Round:       round,
		Forced:      forced,
		At:          at,
	}
}

// Story is the ordered turn history of one origin
type Story struct {
	Origin string  `json:"origin"`
	Turns  []*Turn `json:"turns"`
}

// LastText returns the text of the most recent turn, or blank
func (s *Story) LastText() string {
	if len(s.Turns) == 0 {
		return ""
	}
	return s.Turns[len(s.Turns)-1].Text
}

// StoryBook keeps every origin's story for the lifetime of a game
type StoryBook struct {
	order     []string
	stories   map[string]*Story
	finalized bool
}

// NewStoryBook creates an empty story per origin
func NewStoryBook(origins []string) *StoryBook {
	b := &StoryBook{
		order:   append([]string(nil), origins...),
		stories: make(map[string]*Story, len(origins)),
	}
	for _, origin := range origins {
		b.stories[origin] = &Story{Origin: origin, Turns: make([]*Turn, 0)}
	}
	return b
}

// Append adds a turn to its origin's story. Turns must arrive in round order
// without gaps.
func (b *StoryBook) Append(turn *Turn) error {
	if b.finalized {
		return ErrStoryFinalized
	}
	story, ok := b.stories[turn.Origin]
	if !ok {
		return ErrUnknownOrigin
	}
	if turn.Round != len(story.Turns) {
		return fmt.Errorf("%w: origin %s expects round %d, got %d",
			ErrTurnOutOfOrder, turn.Origin, len(story.Turns), turn.Round)
	}
	story.Turns = append(story.Turns, turn)
	return nil
}

// Story returns the story for origin
func (b *StoryBook) Story(origin string) (*Story, bool) {
	s, ok := b.stories[origin]
	return s, ok
}

// IsFinalized returns true once results were produced
func (b *StoryBook) IsFinalized() bool {
	return b.finalized
}

// ResultTurn is a turn with its contributor's display name resolved
type ResultTurn struct {
	Text            string `json:"text"`
	Contributor     string `json:"contributor"`
	ContributorName string `json:"contributorName"`
	Round           int    `json:"round"`
	Forced          bool   `json:"forced"`
}

// Results is the final, read-only view of every story
type Results struct {
	Origins []string                `json:"origins"`
	Stories map[string][]ResultTurn `json:"stories"`
	Players []ParticipantInfo       `json:"players"`
}

// Finalize freezes the book and resolves contributor names from roster,
// which includes participants who have since left.
func (b *StoryBook) Finalize(roster map[string]string) *Results {
	b.finalized = true

	results := &Results{
		Origins: append([]string(nil), b.order...),
		Stories: make(map[string][]ResultTurn, len(b.order)),
		Players: make([]ParticipantInfo, 0, len(b.order)),
	}

	for _, origin := range b.order {
		story := b.stories[origin]
		turns := make([]ResultTurn, 0, len(story.Turns))
		for _, t := range story.Turns {
			turns = append(turns, ResultTurn{
				Text:            t.Text,
				Contributor:     t.Contributor,
				ContributorName: displayName(roster, t.Contributor),
				Round:           t.Round,
				Forced:          t.Forced,
			})
		}
		results.Stories[origin] = turns
		results.Players = append(results.Players, ParticipantInfo{
			SID:  origin,
			Name: displayName(roster, origin),
		})
	}

	return results
}

func displayName(roster map[string]string, id string) string {
	if name, ok := roster[id]; ok {
		return name
	}
	if id == "" {
		return "nobody"
	}
	return id
}

// Transcript renders the results as plain text, one story after another.
func Transcript(results *Results) string {
	var sb strings.Builder

	names := make(map[string]string, len(results.Players))
	for _, p := range results.Players {
		names[p.SID] = p.Name
	}

	for i, origin := range results.Origins {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Story of %s:\n\n", displayName(names, origin))
		for _, turn := range results.Stories[origin] {
			fmt.Fprintf(&sb, "Round %d (%s):\n%s\n\n", turn.Round+1, turn.ContributorName, turn.Text)
		}
	}

	return sb.String()
}
