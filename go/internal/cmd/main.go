package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrumdeck/scrumdeck/go/clients/roomapi"
	"github.com/scrumdeck/scrumdeck/go/internal/engine"
	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
	"github.com/scrumdeck/scrumdeck/go/internal/session"
	"github.com/scrumdeck/scrumdeck/go/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := loadConfig(getEnv("SCRUMDECK_CONFIG", "scrumdeck.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	deck, ok := protocol.DeckByID(cfg.DeckID)
	if !ok {
		deck = protocol.DefaultDeck()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := transport.NewAdapter(transport.DefaultConfig(cfg.ServerURL))
	eng := engine.New(adapter)
	defer eng.Close()

	unsubscribe := eng.Subscribe(render)
	defer unsubscribe()

	if err := eng.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	fmt.Printf("connected to %s as %q\n", cfg.ServerURL, cfg.UserName)

	lookup := roomapi.NewClient(httpBase(cfg.ServerURL))
	repl(ctx, eng, lookup, cfg, deck)
}

func repl(ctx context.Context, eng *engine.Engine, lookup *roomapi.Client, cfg Config, deck protocol.CardDeck) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: create <name> | join <id> | lookup <id> | vote <value> | reveal | reset | spectate on|off | state | quit")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "create":
			err = eng.CreateRoom(strings.Join(fields[1:], " "), cfg.UserName, deck, cfg.Emoji)
		case "join":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: join <room id>")
				break
			}
			err = eng.JoinRoom(fields[1], cfg.UserName, cfg.Emoji)
		case "lookup":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: lookup <room id>")
				break
			}
			var room *protocol.RoomPayload
			room, err = lookup.GetRoom(ctx, fields[1])
			if err == nil && room == nil {
				fmt.Println("room not found")
			} else if err == nil {
				fmt.Printf("room %q (%d participants)\n", room.Name, len(room.Users))
			}
		case "vote":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: vote <value>")
				break
			}
			err = eng.CastVote(parseCard(fields[1]))
		case "reveal":
			err = eng.Reveal()
		case "reset":
			err = eng.ResetVotes()
		case "spectate":
			err = eng.SetSpectator(len(fields) > 1 && fields[1] == "on")
		case "state":
			render(eng.Snapshot())
		case "quit", "exit":
			return
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// render prints a compact one-screen view of the session.
func render(snap session.Snapshot) {
	if snap.LastError != "" {
		fmt.Printf("! %s\n", snap.LastError)
	}
	if snap.RevealCountdown >= 0 {
		fmt.Printf("revealing in %d...\n", snap.RevealCountdown)
	}
	if !snap.InRoom() {
		fmt.Printf("[%s] no room\n", snap.ConnState)
		return
	}

	status := string(snap.ConnState)
	if snap.Stale {
		status += ", stale"
	}
	fmt.Printf("[%s] room %q (%s) revealed=%v\n", status, snap.Room.Name, snap.Room.ID, snap.Room.Revealed)
	for _, p := range snap.Room.Roster {
		marker := " "
		if p.ID == snap.Identity.ParticipantID {
			marker = "*"
		}
		vote := "-"
		switch {
		case p.Vote != nil:
			vote = p.Vote.String()
		case p.HasVoted:
			vote = "ready"
		}
		fmt.Printf(" %s %s %s [%s] %s\n", marker, p.Emoji, p.Name, p.Role, vote)
	}
}

// parseCard maps a REPL token to a card value: numbers stay numeric,
// everything else is a label.
func parseCard(token string) protocol.CardValue {
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return protocol.NumberCard(f)
	}
	return protocol.StringCard(token)
}

// httpBase derives the REST base URL from the WebSocket URL.
func httpBase(wsURL string) string {
	base := wsURL
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.Replace(base, "ws://", "http://", 1)
	return strings.TrimSuffix(base, "/ws")
}
