// Package cli implements the interactive inspector shell. It decodes and
// re-encodes frames typed as hex, runs them through the interception hooks
// and shows the counters and unknown-kind samples collected so far.
package cli

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/db"
	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/intercept"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
)

// Deps bundles what the shell inspects. Only Codec is required.
type Deps struct {
	Config      *config.Config
	EventBus    *events.EventBus
	Codec       *protocol.Codec
	Interceptor *intercept.Interceptor
	Stats       *telemetry.Stats
	Store       *db.Store
}

// Shell provides an interactive command-line interface.
type Shell struct {
	deps Deps
	in   io.Reader
	out  io.Writer
	side protocol.Side
}

// NewShell creates a shell reading commands from in and writing to out.
func NewShell(deps Deps, in io.Reader, out io.Writer) *Shell {
	if deps.Codec == nil {
		deps.Codec = protocol.NewCodec()
	}
	s := &Shell{deps: deps, in: in, out: out, side: protocol.ClientSide}
	if deps.Config != nil {
		if side, err := protocol.ParseSide(deps.Config.GetCodec().DefaultSide); err == nil {
			s.side = side
		}
	}
	return s
}

// Run reads commands until EOF, quit, or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	fmt.Fprintln(s.out, "tilehook inspector ready. Type 'help' for available commands.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprintf(s.out, "tilehook(%s)> ", s.side)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return <-scanErr
			}
			quit, err := s.Execute(ctx, line)
			if err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs a single command line. It reports true when the shell
// should exit.
func (s *Shell) Execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help", "h", "?":
		s.printHelp()
	case "side":
		return false, s.cmdSide(args)
	case "kinds", "k":
		s.printKinds(args)
	case "decode", "d":
		return false, s.cmdDecode(args)
	case "roundtrip", "rt":
		return false, s.cmdRoundTrip(args)
	case "intercept", "i":
		return false, s.cmdIntercept(ctx, args)
	case "stats":
		s.printStats(args)
	case "unknowns", "u":
		return false, s.cmdUnknowns(args)
	case "captures":
		return false, s.printCaptures()
	case "validate":
		return false, s.cmdValidate()
	case "set":
		return false, s.cmdSet(ctx, args)
	case "quit", "exit", "q":
		return true, nil
	default:
		fmt.Fprintf(s.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
  side [server|client]        Show or change the producing side
  kinds [packets|tiles]       List registered kinds
  decode <hex>                Decode one frame
  roundtrip <hex>             Decode, re-encode and compare
  intercept <hex>             Run a frame through the hooks
  stats [total]               Per-kind counters
  unknowns [scope kind]       Unknown kinds seen, or samples of one kind
  captures                    Recorded capture files
  validate                    Validate the running config
  set <section.key> <value>   Update a config value
  quit                        Leave the shell`)
}

func (s *Shell) cmdSide(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "side: %s\n", s.side)
		return nil
	}
	side, err := protocol.ParseSide(args[0])
	if err != nil {
		return err
	}
	s.side = side
	fmt.Fprintf(s.out, "side set to %s\n", side)
	return nil
}

// parseFrame joins the hex arguments, so "0800 1003 ..." may be typed with
// spaces.
func parseFrame(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("frame hex required")
	}
	s := strings.Join(args, "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	frame, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("frame is not valid hex: %w", err)
	}
	return frame, nil
}

func (s *Shell) cmdDecode(args []string) error {
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}
	p, err := s.deps.Codec.Decode(frame, s.side)
	if err != nil {
		return err
	}
	return s.printPacket(p)
}

func (s *Shell) printPacket(p protocol.Packet) error {
	body, err := json.MarshalIndent(p, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to render packet: %w", err)
	}
	fmt.Fprintf(s.out, "%s (%d)\n  %s\n", p.Kind(), uint8(p.Kind()), body)
	return nil
}

func (s *Shell) cmdRoundTrip(args []string) error {
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}
	p, err := s.deps.Codec.Decode(frame, s.side)
	if err != nil {
		return err
	}
	out, err := s.deps.Codec.Encode(p, s.side)
	if err != nil {
		return err
	}
	original := frame[:int(frame[0])|int(frame[1])<<8]
	if string(original) == string(out) {
		fmt.Fprintf(s.out, "%s: match (%d bytes)\n", p.Kind(), len(out))
		return nil
	}
	fmt.Fprintf(s.out, "%s: MISMATCH\n  original:  %x\n  reencoded: %x\n", p.Kind(), original, out)
	return nil
}

func (s *Shell) cmdIntercept(ctx context.Context, args []string) error {
	if s.deps.Interceptor == nil {
		return fmt.Errorf("interceptor not configured")
	}
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}
	out, forward, err := s.deps.Interceptor.Process(ctx, frame, s.side)
	switch {
	case !forward:
		fmt.Fprintln(s.out, "dropped")
	case string(out) == string(frame):
		fmt.Fprintf(s.out, "forwarded unchanged: %x\n", out)
	default:
		fmt.Fprintf(s.out, "forwarded rewritten: %x\n", out)
	}
	return err
}

func (s *Shell) cmdValidate() error {
	if s.deps.Config == nil {
		return fmt.Errorf("no config loaded")
	}
	result := config.Validate(s.deps.Config)
	for _, w := range result.Warnings {
		fmt.Fprintf(s.out, "warning: %s: %s\n", w.Field, w.Message)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(s.out, "error: %s: %s\n", e.Field, e.Message)
	}
	if result.IsValid() {
		fmt.Fprintln(s.out, "config is valid")
	}
	return nil
}

func (s *Shell) cmdSet(ctx context.Context, args []string) error {
	if s.deps.Config == nil {
		return fmt.Errorf("no config loaded")
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: set <section.key> <value>")
	}
	section, key, ok := strings.Cut(args[0], ".")
	if !ok {
		return fmt.Errorf("key must be section.key, got %q", args[0])
	}
	raw := strings.Join(args[1:], " ")

	// numbers and booleans go through as JSON, anything else as a string
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	next := s.deps.Config.Clone()
	if err := next.UpdateField(section, key, value); err != nil {
		return err
	}
	if result := config.Validate(next); !result.IsValid() {
		return result.Errors[0]
	}
	if err := s.deps.Config.UpdateField(section, key, value); err != nil {
		return err
	}
	if s.deps.Config.Path() != "" {
		if err := s.deps.Config.Save(); err != nil {
			return err
		}
	}
	if s.deps.EventBus != nil {
		s.deps.EventBus.Emit(ctx, events.NewEvent(events.EventConfigChanged, "cli",
			events.ConfigChangedPayload{Section: section, Key: key, Value: value}))
	}
	log.Info().Str("section", section).Str("key", key).Msg("config updated from shell")
	fmt.Fprintf(s.out, "Config updated: %s.%s = %s\n", section, key, raw)
	return nil
}
