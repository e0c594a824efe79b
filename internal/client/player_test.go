package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storychain/internal/app"
	"storychain/internal/transport/ws"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type terminal struct {
	in   *io.PipeWriter
	out  *syncBuffer
	done chan error
}

func startPlayer(t *testing.T, ctx context.Context, url string, opts Options) *terminal {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inR, inW := io.Pipe()
	term := &terminal{in: inW, out: &syncBuffer{}, done: make(chan error, 1)}

	opts.URL = url
	player, err := Dial(ctx, opts, inR, term.out, logger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	go func() { term.done <- player.Run(ctx) }()
	t.Cleanup(func() { inW.Close() })
	return term
}

func (term *terminal) typeLine(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(term.in, line+"\n"); err != nil {
		t.Fatalf("type %q: %v", line, err)
	}
}

func (term *terminal) waitFor(t *testing.T, want string) {
	t.Helper()
	term.waitForCount(t, want, 1)
}

func (term *terminal) waitForCount(t *testing.T, want string, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Count(term.out.String(), want) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d x %q in:\n%s", n, want, term.out.String())
}

func TestPlayersCompleteGame(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := app.NewHub(logger)
	server := httptest.NewServer(ws.NewHandler(hub, logger))
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ann := startPlayer(t, ctx, url, Options{Name: "Ann", Room: "abc123", Create: true})
	ann.waitFor(t, "Joined room ABC123.")

	bob := startPlayer(t, ctx, url+"?room=ABC123", Options{Name: "Bob"})
	ann.waitFor(t, "Players: Ann (you) *, Bob")
	bob.waitFor(t, "Players: Ann *, Bob (you)")

	ann.typeLine(t, "/start 1 0 20")
	ann.waitFor(t, "Write a starting snippet.")
	bob.waitFor(t, "Write a starting snippet.")

	ann.typeLine(t, `Once upon a time\`)
	ann.typeLine(t, "//slashes stay text")
	bob.typeLine(t, "It was a dark and stormy night")

	ann.waitFor(t, "Round 1 (Ann):\nOnce upon a time\n/sl\n")
	bob.waitFor(t, "Round 1 (Bob):\nIt was a dark and st\n")

	// Step mode shows the first story again, one turn at a time.
	bob.typeLine(t, "/step")
	bob.waitForCount(t, "Story of Ann:", 2)

	// The host brings everyone back for a rematch in the same room.
	ann.typeLine(t, "/again")
	ann.waitFor(t, "Back in the lobby of room ABC123.")
	bob.waitFor(t, "Back in the lobby of room ABC123.")
	ann.typeLine(t, "/start 1")
	bob.waitForCount(t, "Write a starting snippet.", 2)

	ann.typeLine(t, "/quit")
	select {
	case err := <-ann.done:
		if err != nil {
			t.Fatalf("ann exited with %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ann did not quit")
	}

	bob.in.Close()
	select {
	case err := <-bob.done:
		if err != nil {
			t.Fatalf("bob exited with %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("bob did not quit on end of input")
	}
}

func TestParseSettings(t *testing.T) {
	s, err := parseSettings([]string{"3", "45"})
	if err != nil || s.Rounds != 3 || s.TimeLimitSeconds != 45 || s.CharLimit != 0 {
		t.Fatalf("unexpected settings %+v (%v)", s, err)
	}
	if _, err := parseSettings([]string{"x"}); err == nil {
		t.Fatal("expected error for non-number")
	}
	if _, err := parseSettings([]string{"1", "2", "3", "4"}); err == nil {
		t.Fatal("expected error for too many arguments")
	}
}
