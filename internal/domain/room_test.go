package domain

import (
	"errors"
	"testing"
	"unicode/utf8"
)

func newLobby(t *testing.T, code string, names ...string) *Room {
	t.Helper()
	room, err := NewRoom(code, DefaultLimits())
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	for i, name := range names {
		p := NewParticipant(name, name)
		var err error
		if i == 0 {
			_, err = room.Create(p)
		} else {
			_, err = room.Join(p)
		}
		if err != nil {
			t.Fatalf("seat %s: %v", name, err)
		}
	}
	return room
}

func eventsOfType(events []*Event, eventType EventType) []*Event {
	var out []*Event
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// promptsByWriter maps writer -> origin for the prompts in events.
func promptsByWriter(events []*Event) map[string]string {
	out := make(map[string]string)
	for _, e := range eventsOfType(events, EventPrompt) {
		out[e.To] = e.Payload.(*PromptPayload).Origin
	}
	return out
}

func TestNewRoomValidatesCode(t *testing.T) {
	for _, code := range []string{"", "ABC12", "ABC1234", "ABC-12"} {
		if _, err := NewRoom(code, DefaultLimits()); !errors.Is(err, ErrInvalidRoomCode) {
			t.Fatalf("code %q: expected ErrInvalidRoomCode, got %v", code, err)
		}
	}

	room, err := NewRoom(" abc123 ", DefaultLimits())
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	if room.Code != "ABC123" {
		t.Fatalf("expected upper-cased code, got %q", room.Code)
	}
}

func TestRoomCreateEvents(t *testing.T) {
	room, _ := NewRoom("ABC123", DefaultLimits())

	events, err := room.Create(NewParticipant("a", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(events) != 3 || events[0].Type != EventRoomCreated || events[1].Type != EventJoined || events[2].Type != EventPlayerList {
		t.Fatalf("unexpected create events: %+v", events)
	}
	if room.Members[0].Name != DefaultName {
		t.Fatalf("expected default name, got %q", room.Members[0].Name)
	}
	if _, err := room.Create(NewParticipant("b", "B")); !errors.Is(err, ErrDuplicateRoomCode) {
		t.Fatalf("expected ErrDuplicateRoomCode, got %v", err)
	}
}

func TestRoomMembershipOrder(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B", "C", "D")

	events, err := room.Leave("B")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	list := events[0].Payload.([]ParticipantInfo)
	if len(list) != 3 || list[0].SID != "A" || list[1].SID != "C" || list[2].SID != "D" {
		t.Fatalf("unexpected snapshot: %+v", list)
	}
	if len(room.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(room.Members))
	}

	if _, err := room.Leave("A"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if !room.IsHost("C") {
		t.Fatal("expected C to inherit start authority")
	}
	if _, err := room.Leave("A"); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestRoomJoinRules(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPlayers = 2
	room, _ := NewRoom("ROOM01", limits)
	room.Create(NewParticipant("a", "A"))

	events, err := room.Join(NewParticipant("b", "B"))
	if err != nil || len(events) != 2 {
		t.Fatalf("join: %v (%d events)", err, len(events))
	}
	if events, err := room.Join(NewParticipant("b", "B")); err != nil || events != nil {
		t.Fatalf("rejoin should be a no-op, got %v %v", events, err)
	}
	if _, err := room.Join(NewParticipant("c", "C")); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}

	if _, err := room.Start("a", Settings{Rounds: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	room.Leave("b")
	if _, err := room.Join(NewParticipant("d", "D")); !errors.Is(err, ErrRoomAlreadyStarted) {
		t.Fatalf("expected ErrRoomAlreadyStarted, got %v", err)
	}
}

func TestRoomStartAuthorization(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B")

	if _, err := room.Start("B", Settings{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := room.Start("A", Settings{Rounds: -1}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}

	events, err := room.Start("A", Settings{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if events[0].Type != EventGameStarted {
		t.Fatalf("expected game_started first, got %s", events[0].Type)
	}
	if room.Settings.Rounds != 2 {
		t.Fatalf("expected rounds to default to player count, got %d", room.Settings.Rounds)
	}
	if _, err := room.Start("A", Settings{}); !errors.Is(err, ErrRoomAlreadyStarted) {
		t.Fatalf("expected ErrRoomAlreadyStarted, got %v", err)
	}
}

func TestRoomScenarioThreePlayers(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B", "C")

	events, err := room.Start("A", Settings{Rounds: 2, CharLimit: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	prompts := promptsByWriter(events)
	for _, id := range []string{"A", "B", "C"} {
		if prompts[id] != id {
			t.Fatalf("round 0: %s should write own origin, got %q", id, prompts[id])
		}
	}

	var round1 []*Event
	for _, id := range []string{"A", "B", "C"} {
		evs, err := room.Submit(id, id, "opening by "+id)
		if err != nil {
			t.Fatalf("round 0 submit %s: %v", id, err)
		}
		round1 = append(round1, evs...)
	}
	if room.CurrentRound() != 1 {
		t.Fatalf("expected round 1, got %d", room.CurrentRound())
	}

	prompts = promptsByWriter(round1)
	if len(prompts) != 3 {
		t.Fatalf("expected 3 round 1 prompts, got %d", len(prompts))
	}
	for writer, origin := range prompts {
		if writer == origin {
			t.Fatalf("round 1: %s assigned own origin", writer)
		}
	}
	for _, e := range eventsOfType(round1, EventPrompt) {
		p := e.Payload.(*PromptPayload)
		if p.Text != "opening by "+p.Origin {
			t.Fatalf("prompt for %s should carry last turn, got %q", p.Origin, p.Text)
		}
	}

	var final []*Event
	for writer, origin := range prompts {
		evs, err := room.Submit(writer, origin, "a continuation that is far too long")
		if err != nil {
			t.Fatalf("round 1 submit %s: %v", writer, err)
		}
		final = append(final, evs...)
	}

	if room.Status != StatusFinished {
		t.Fatalf("expected finished room, got %s", room.Status)
	}
	res := eventsOfType(final, EventResults)
	if len(res) != 1 {
		t.Fatalf("expected one results event, got %d", len(res))
	}
	results := res[0].Payload.(*Results)
	if len(results.Stories) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(results.Stories))
	}
	for origin, turns := range results.Stories {
		if len(turns) != 2 {
			t.Fatalf("story %s has %d turns", origin, len(turns))
		}
		if utf8.RuneCountInString(turns[1].Text) > 10 {
			t.Fatalf("story %s second turn exceeds limit: %q", origin, turns[1].Text)
		}
		if turns[0].Round != 0 || turns[1].Round != 1 {
			t.Fatalf("story %s out of order", origin)
		}
	}
}

func TestRoomSubmitErrors(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B")
	if _, err := room.Submit("A", "A", "x"); !errors.Is(err, ErrGameNotStarted) {
		t.Fatalf("expected ErrGameNotStarted, got %v", err)
	}

	room.Start("A", Settings{Rounds: 2})
	if _, err := room.Submit("A", "B", "x"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := room.Submit("A", "A", "x"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := room.Submit("A", "A", "again"); !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestRoomExpireForcesEmptyTurn(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B", "C")
	room.Start("A", Settings{Rounds: 2, TimeLimitSeconds: 30})

	room.Submit("A", "A", "a")
	room.Submit("B", "B", "b")

	events, err := room.Expire(0)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if room.CurrentRound() != 1 {
		t.Fatalf("expected advance to round 1, got %d", room.CurrentRound())
	}
	if len(eventsOfType(events, EventPrompt)) != 3 {
		t.Fatalf("expected 3 prompts after expiry, got %d", len(eventsOfType(events, EventPrompt)))
	}

	story, _ := room.Stories.Story("C")
	if len(story.Turns) != 1 || story.Turns[0].Text != "" || !story.Turns[0].Forced {
		t.Fatalf("expected forced empty turn for C, got %+v", story.Turns)
	}

	// A late timer for round 0 changes nothing.
	events, err = room.Expire(0)
	if err != nil || events != nil {
		t.Fatalf("stale expiry should be a no-op, got %v %v", events, err)
	}
	if room.CurrentRound() != 1 {
		t.Fatalf("stale expiry advanced the round to %d", room.CurrentRound())
	}
}

func TestRoomExpireUsesDraft(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B")
	room.Start("A", Settings{Rounds: 1, TimeLimitSeconds: 10, CharLimit: 5})

	room.Submit("A", "A", "done")
	if err := room.SaveDraft("B", "B", "half written"); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if err := room.SaveDraft("B", "A", "nope"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}

	events, _ := room.Expire(0)
	results := eventsOfType(events, EventResults)[0].Payload.(*Results)
	if got := results.Stories["B"][0].Text; got != "half " {
		t.Fatalf("expected truncated draft, got %q", got)
	}
}

func TestRoomExpireAfterFullSubmissionIsNoop(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B")
	room.Start("A", Settings{Rounds: 3, TimeLimitSeconds: 10})

	room.Submit("A", "A", "a")
	room.Submit("B", "B", "b")

	events, err := room.Expire(0)
	if err != nil || events != nil {
		t.Fatalf("expected no-op, got %v %v", events, err)
	}
	for _, origin := range room.Origins {
		story, _ := room.Stories.Story(origin)
		if len(story.Turns) != 1 {
			t.Fatalf("origin %s has %d turns", origin, len(story.Turns))
		}
	}
	if room.CurrentRound() != 1 {
		t.Fatalf("expected round 1, got %d", room.CurrentRound())
	}
}

func TestRoomLeaveMidRoundClosesRound(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B", "C")
	room.Start("A", Settings{Rounds: 3})

	room.Submit("A", "A", "a")
	room.Submit("B", "B", "b")

	events, err := room.Leave("C")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if room.CurrentRound() != 1 {
		t.Fatalf("expected round to close after C left, got %d", room.CurrentRound())
	}

	prompts := promptsByWriter(events)
	if _, ok := prompts["C"]; ok {
		t.Fatal("departed C should not be prompted")
	}
	if len(room.Origins) != 3 {
		t.Fatalf("origins must stay fixed, got %v", room.Origins)
	}
	if room.Round.WriterOf("C") == "C" || room.Round.WriterOf("C") == "" {
		t.Fatalf("origin C needs a connected writer, got %q", room.Round.WriterOf("C"))
	}

	// Play out the game; every story must still end with 3 turns.
	for room.Status == StatusInRound {
		for _, origin := range room.Round.Outstanding() {
			if _, err := room.Submit(room.Round.WriterOf(origin), origin, "more"); err != nil {
				t.Fatalf("submit %s: %v", origin, err)
			}
		}
	}
	for origin, turns := range room.Results.Stories {
		if len(turns) != 3 {
			t.Fatalf("story %s has %d turns", origin, len(turns))
		}
	}
	if room.Results.Players[2].Name != "C" {
		t.Fatalf("departed C should keep a name in results, got %+v", room.Results.Players)
	}
}

func TestStatusTransitions(t *testing.T) {
	if !StatusLobby.CanTransitionTo(StatusInRound) {
		t.Fatal("lobby -> in round")
	}
	if StatusFinished.CanTransitionTo(StatusInRound) {
		t.Fatal("finished rooms cannot restart")
	}
	if StatusLobby.CanTransitionTo(StatusFinished) {
		t.Fatal("lobby cannot finish directly")
	}
	if !StatusFinished.CanTransitionTo(StatusLobby) {
		t.Fatal("finished -> lobby")
	}
}

func TestRoomReopenForRematch(t *testing.T) {
	room := newLobby(t, "ABC123", "A", "B")
	if _, err := room.Reopen("A"); !errors.Is(err, ErrGameNotFinished) {
		t.Fatalf("expected ErrGameNotFinished in the lobby, got %v", err)
	}

	room.Start("A", Settings{Rounds: 1})
	room.Submit("A", "A", "a")
	room.Submit("B", "B", "b")
	if room.Status != StatusFinished {
		t.Fatalf("expected FINISHED, got %s", room.Status)
	}

	if _, err := room.Reopen("B"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for B, got %v", err)
	}
	events, err := room.Reopen("A")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(eventsOfType(events, EventLobby)) != 1 || len(eventsOfType(events, EventPlayerList)) != 1 {
		t.Fatalf("expected lobby and player_list events, got %d events", len(events))
	}
	if room.Status != StatusLobby || room.Results != nil || room.CurrentRound() != -1 || len(room.Origins) != 0 {
		t.Fatalf("room not reset: %s results=%v round=%d", room.Status, room.Results, room.CurrentRound())
	}

	// Late joiners are welcome again and take part in the rematch.
	if _, err := room.Join(NewParticipant("C", "C")); err != nil {
		t.Fatalf("join after reopen: %v", err)
	}
	events, err = room.Start("A", Settings{})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if room.Settings.Rounds != 3 || len(promptsByWriter(events)) != 3 {
		t.Fatalf("expected a 3-player rematch, got %+v", room.Settings)
	}
}
