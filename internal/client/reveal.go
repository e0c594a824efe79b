package client

import "storychain/internal/domain"

// Reveal steps through finished stories one turn at a time
type Reveal struct {
	results *domain.Results
	story   int
	turn    int
}

// NewReveal starts a reveal at the first turn of the first story
func NewReveal(results *domain.Results) *Reveal {
	return &Reveal{results: results}
}

// Next returns the next turn to show and the story it belongs to. It
// reports false once every turn has been shown.
func (r *Reveal) Next() (string, domain.ResultTurn, bool) {
	for r.story < len(r.results.Origins) {
		origin := r.results.Origins[r.story]
		turns := r.results.Stories[origin]
		if r.turn < len(turns) {
			turn := turns[r.turn]
			r.turn++
			return origin, turn, true
		}
		r.story++
		r.turn = 0
	}
	return "", domain.ResultTurn{}, false
}

// StartsStory reports whether the last turn returned by Next opened its story
func (r *Reveal) StartsStory() bool {
	return r.turn == 1
}
