package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"storychain/internal/domain"
	"storychain/internal/protocol"
)

const (
	// countdownWarning is when the player is told time is nearly up
	countdownWarning = 10 * time.Second

	// tickInterval is how often the local countdown is checked
	tickInterval = 250 * time.Millisecond

	writeWait = 10 * time.Second
)

// errQuit ends a session at the player's request
var errQuit = errors.New("quit")

// Options configures a terminal player
type Options struct {
	URL    string // websocket URL; a room query parameter selects the room
	Name   string
	Room   string
	Create bool // create Room instead of joining it
}

// Player drives a Machine over a websocket from line-based terminal input.
type Player struct {
	conn    *websocket.Conn
	machine *Machine
	reveal  *Reveal
	opts    Options
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger

	mu      sync.Mutex // guards machine, reveal and out
	writeMu sync.Mutex // serializes websocket writes
	warned  *Prompt
}

// Dial connects to the server
func Dial(ctx context.Context, opts Options, in io.Reader, out io.Writer, logger *slog.Logger) (*Player, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if opts.Room == "" {
		opts.Room = u.Query().Get("room")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	return &Player{
		conn:    conn,
		machine: NewMachine(nil),
		opts:    opts,
		in:      in,
		out:     out,
		logger:  logger,
	}, nil
}

// Run plays until the context ends, the player quits or the connection drops
func (p *Player) Run(ctx context.Context) error {
	defer p.conn.Close()

	if err := p.enter(); err != nil {
		return err
	}

	lines := make(chan string)
	go p.scan(lines)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.readLoop(ctx) })
	g.Go(func() error { return p.inputLoop(ctx, lines) })
	g.Go(func() error { return p.tickLoop(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		p.conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// enter creates or joins the configured room
func (p *Player) enter() error {
	if p.opts.Create || p.opts.Room == "" {
		return p.send(protocol.NewClientMessage(protocol.MsgCreateRoom, protocol.CreateRoomPayload{
			RoomCode: p.opts.Room,
			Player:   protocol.PlayerPayload{Name: p.opts.Name},
		}))
	}
	return p.send(protocol.NewClientMessage(protocol.MsgJoinRoom, protocol.JoinRoomPayload{
		Name: p.opts.Name,
		Room: p.opts.Room,
	}))
}

func (p *Player) send(msg *protocol.ClientMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (p *Player) scan(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func (p *Player) readLoop(ctx context.Context) error {
	for {
		var env protocol.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		p.mu.Lock()
		before := p.machine.State()
		if err := p.machine.Handle(&env); err != nil {
			p.logger.Warn("ignored server message", "type", env.Type, "error", err)
		}
		p.render(&env, before)
		p.mu.Unlock()
	}
}

func (p *Player) inputLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				p.send(protocol.NewClientMessage(protocol.MsgLeaveRoom, nil))
				return errQuit
			}
			if err := p.handleLine(line); err != nil {
				return err
			}
		}
	}
}

func (p *Player) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.mu.Lock()
			remaining, running := p.machine.Remaining()
			if running && remaining <= countdownWarning && p.warned != p.machine.Prompt() {
				p.warned = p.machine.Prompt()
				p.printf("%s left\n", remaining.Round(time.Second))
			}
			msg, fired := p.machine.Expire()
			if fired {
				p.printf("Time's up, sending what you have.\n")
				p.showPrompt()
			}
			p.mu.Unlock()

			if fired {
				if err := p.send(msg); err != nil {
					return err
				}
			}
		}
	}
}

// handleLine applies one line of terminal input
func (p *Player) handleLine(line string) error {
	// A doubled slash starts a story line with a literal slash.
	if text, ok := strings.CutPrefix(line, "//"); ok {
		line = "/" + text
	} else if strings.HasPrefix(line, "/") {
		return p.command(strings.Fields(line))
	}

	p.mu.Lock()
	if p.machine.State() != StateWriting {
		p.mu.Unlock()
		return nil
	}

	// A trailing backslash continues the turn on the next line.
	draft := p.machine.Draft()
	if draft != "" {
		draft += "\n"
	}
	if text, more := strings.CutSuffix(line, `\`); more {
		p.machine.SetDraft(draft + text)
		msg, err := p.machine.DraftMessage()
		p.mu.Unlock()
		if err != nil {
			return nil
		}
		return p.send(msg)
	}

	kept := p.machine.SetDraft(draft + line)
	if kept != draft+line {
		p.printf("(trimmed to %d characters)\n", p.machine.Settings().CharLimit)
	}
	msg, err := p.machine.Submit()
	if err == nil {
		p.showPrompt()
	}
	p.mu.Unlock()

	if err != nil {
		return nil
	}
	return p.send(msg)
}

func (p *Player) command(fields []string) error {
	switch fields[0] {
	case "/quit":
		p.send(protocol.NewClientMessage(protocol.MsgLeaveRoom, nil))
		return errQuit

	case "/start":
		settings, err := parseSettings(fields[1:])
		if err != nil {
			p.locked(func() { p.printf("%v\n", err) })
			return nil
		}
		return p.send(protocol.NewClientMessage(protocol.MsgStartGame, protocol.StartGamePayload{Settings: settings}))

	case "/join", "/create":
		code := ""
		if len(fields) > 1 {
			code = fields[1]
		}
		if fields[0] == "/join" {
			return p.send(protocol.NewClientMessage(protocol.MsgJoinRoom, protocol.JoinRoomPayload{Name: p.opts.Name, Room: code}))
		}
		return p.send(protocol.NewClientMessage(protocol.MsgCreateRoom, protocol.CreateRoomPayload{
			RoomCode: code,
			Player:   protocol.PlayerPayload{Name: p.opts.Name},
		}))

	case "/players":
		p.locked(p.showPlayers)

	case "/step":
		p.locked(func() {
			if results := p.machine.Results(); results != nil {
				p.reveal = NewReveal(results)
				p.stepReveal()
			}
		})

	case "/next":
		p.locked(func() {
			if p.reveal != nil {
				p.stepReveal()
			}
		})

	case "/all":
		p.locked(func() {
			if results := p.machine.Results(); results != nil {
				p.printf("%s", domain.Transcript(results))
			}
		})

	case "/again":
		return p.send(protocol.NewClientMessage(protocol.MsgRematch, nil))

	case "/lobby":
		var reset bool
		p.locked(func() { reset = p.machine.Reset() == nil })
		if reset {
			p.locked(func() { p.printf("Back in the lobby. /create [CODE] or /join CODE\n") })
			return p.send(protocol.NewClientMessage(protocol.MsgLeaveRoom, nil))
		}

	default:
		p.locked(func() {
			p.printf("Commands: /start [rounds] [seconds] [chars], /players, /step, /next, /all, /again, /lobby, /join CODE, /create [CODE], /quit\n")
		})
	}
	return nil
}

// render reports a handled server message (caller must hold mu)
func (p *Player) render(env *protocol.Envelope, before State) {
	m := p.machine

	switch env.Type {
	case protocol.MsgRoomCreated:
		p.printf("Room created! Share this code: %s\n", m.Room())
	case protocol.MsgJoined:
		p.printf("Joined room %s.\n", m.Room())
	case protocol.MsgPlayerList:
		p.showPlayers()
	case protocol.MsgGameStarted:
		s := m.Settings()
		p.printf("Game started: %d rounds, time limit %s, character limit %s.\n",
			s.Rounds, describeLimit(s.TimeLimitSeconds, "seconds"), describeLimit(s.CharLimit, "characters"))
	case protocol.MsgPrompt:
		if before == StateWriting && m.Pending() > 0 {
			p.printf("(another story is waiting for you)\n")
		} else {
			p.showPrompt()
		}
	case protocol.MsgRoundSubmitted:
		if m.State() == StateWaiting {
			p.printf("%d of %d done.\n", m.Submitted(), len(m.Players()))
		}
	case protocol.MsgResults:
		p.reveal = nil
		p.printf("\n%s", domain.Transcript(m.Results()))
		if m.IsHost() {
			p.printf("/step to reveal turn by turn, /again for a rematch, /lobby to leave.\n")
		} else {
			p.printf("/step to reveal turn by turn, /lobby to leave.\n")
		}
	case protocol.MsgLobby:
		p.reveal = nil
		p.printf("Back in the lobby of room %s.\n", m.Room())
	case protocol.MsgError:
		if err := m.LastError(); err != nil {
			p.printf("Error: %s\n", err.Message)
		}
	}
}

// showPrompt prints the current prompt or the waiting notice (caller must hold mu)
func (p *Player) showPrompt() {
	prompt := p.machine.Prompt()
	if prompt == nil {
		if p.machine.State() == StateWaiting {
			p.printf("Waiting for the others...\n")
		}
		return
	}

	p.printf("\n-- Round %d --\n", prompt.Round+1)
	if prompt.Text == "" {
		p.printf("Write a starting snippet.\n")
	} else {
		p.printf("Continue this:\n  %s\n", prompt.Text)
	}
	if remaining, ok := p.machine.Remaining(); ok {
		p.printf("(%s to write)\n", remaining.Round(time.Second))
	}
}

func (p *Player) showPlayers() {
	var names []string
	for i, player := range p.machine.Players() {
		name := player.Name
		if player.SID == p.machine.SID() {
			name += " (you)"
		}
		if i == 0 {
			name += " *"
		}
		names = append(names, name)
	}
	p.printf("Players: %s\n", strings.Join(names, ", "))
	if p.machine.IsHost() && p.machine.State() == StateLobby {
		p.printf("You are first; type /start when everyone is in.\n")
	}
}

func (p *Player) stepReveal() {
	origin, turn, ok := p.reveal.Next()
	if !ok {
		p.printf("That's every story.\n")
		p.reveal = nil
		return
	}
	if p.reveal.StartsStory() {
		p.printf("\nStory of %s:\n", p.nameOf(origin))
	}
	p.printf("Round %d (%s):\n%s\n", turn.Round+1, turn.ContributorName, turn.Text)
}

func (p *Player) nameOf(sid string) string {
	if results := p.machine.Results(); results != nil {
		for _, player := range results.Players {
			if player.SID == sid {
				return player.Name
			}
		}
	}
	for _, player := range p.machine.Players() {
		if player.SID == sid {
			return player.Name
		}
	}
	return sid
}

func (p *Player) locked(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f()
}

func (p *Player) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// parseSettings reads "/start [rounds] [seconds] [chars]" arguments
func parseSettings(args []string) (domain.Settings, error) {
	var values [3]int
	for i, arg := range args {
		if i >= len(values) {
			return domain.Settings{}, errors.New("usage: /start [rounds] [seconds] [chars]")
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return domain.Settings{}, fmt.Errorf("not a valid number: %q", arg)
		}
		values[i] = n
	}
	return domain.Settings{Rounds: values[0], TimeLimitSeconds: values[1], CharLimit: values[2]}, nil
}

func describeLimit(n int, unit string) string {
	if n <= 0 {
		return "none"
	}
	return strconv.Itoa(n) + " " + unit
}
