package cli

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/util"
)

func (s *Shell) newTable(header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(s.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (s *Shell) printKinds(args []string) {
	show := "all"
	if len(args) > 0 {
		show = args[0]
	}

	if show == "all" || show == "packets" {
		tw := s.newTable("ID", "Packet")
		for _, k := range protocol.PacketKinds() {
			tw.Append([]string{strconv.Itoa(int(k.ID)), k.Name})
		}
		tw.Render()
	}
	if show == "all" || show == "tiles" {
		tw := s.newTable("ID", "Tile Entity", "Index Width")
		for _, k := range protocol.TileEntityKinds() {
			tw.Append([]string{strconv.Itoa(int(k.ID)), k.Name, strconv.Itoa(k.IndexWidth)})
		}
		tw.Render()
	}
}

func (s *Shell) printStats(args []string) {
	if s.deps.Stats == nil {
		fmt.Fprintln(s.out, "stats not collected")
		return
	}
	kinds := s.deps.Stats.Snapshot()
	if len(args) > 0 && args[0] == "total" {
		telemetry.SortByTotal(kinds)
	}
	if len(kinds) == 0 {
		fmt.Fprintln(s.out, "no packets seen")
		return
	}

	tw := s.newTable("Kind", "Name", "Side", "Decoded", "Encoded", "Errors", "Unknown", "Dropped", "Rewritten")
	for _, k := range kinds {
		tw.Append([]string{
			strconv.Itoa(int(k.Kind)), k.Name, k.Side.String(),
			fmt.Sprint(k.Decoded), fmt.Sprint(k.Encoded), fmt.Sprint(k.Errors),
			fmt.Sprint(k.Unknown), fmt.Sprint(k.Dropped), fmt.Sprint(k.Rewritten),
		})
	}
	t := s.deps.Stats.Totals()
	tw.SetFooter([]string{"", "TOTAL", "",
		fmt.Sprint(t.Decoded), fmt.Sprint(t.Encoded), fmt.Sprint(t.Errors),
		fmt.Sprint(t.Unknown), fmt.Sprint(t.Dropped), fmt.Sprint(t.Rewritten),
	})
	tw.Render()
}

func (s *Shell) cmdUnknowns(args []string) error {
	if s.deps.Store == nil {
		return fmt.Errorf("database not configured")
	}

	if len(args) >= 2 {
		kind, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid kind: %s", args[1])
		}
		samples, err := s.deps.Store.UnknownSamples(args[0], uint8(kind), 20)
		if err != nil {
			return err
		}
		tw := s.newTable("Side", "Hits", "Size", "Last Seen", "Payload")
		for _, smp := range samples {
			payload := fmt.Sprintf("%x", smp.Payload)
			if len(payload) > 48 {
				payload = payload[:48] + "..."
			}
			tw.Append([]string{smp.Side, fmt.Sprint(smp.Hits), strconv.Itoa(len(smp.Payload)),
				smp.LastSeen.Format("2006-01-02 15:04:05"), payload})
		}
		tw.Render()
		return nil
	}

	kinds, err := s.deps.Store.UnknownKinds()
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		fmt.Fprintln(s.out, "no unknown kinds recorded")
		return nil
	}
	tw := s.newTable("Scope", "Kind", "Samples", "Hits", "Max Size", "Last Seen")
	for _, k := range kinds {
		tw.Append([]string{k.Scope, strconv.Itoa(int(k.Kind)), fmt.Sprint(k.Samples), fmt.Sprint(k.Hits),
			fmt.Sprint(k.MaxSize), k.LastSeen.Format("2006-01-02 15:04:05")})
	}
	tw.Render()
	return nil
}

func (s *Shell) printCaptures() error {
	if s.deps.Store == nil {
		return fmt.Errorf("database not configured")
	}
	caps, err := s.deps.Store.Captures()
	if err != nil {
		return err
	}
	if len(caps) == 0 {
		fmt.Fprintln(s.out, "no captures recorded")
		return nil
	}
	tw := s.newTable("Session", "Started", "Records", "Size", "Path")
	for _, c := range caps {
		tw.Append([]string{c.SessionID, c.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprint(c.Records), util.FormatBytes(c.SizeBytes), c.Path})
	}
	tw.Render()
	return nil
}
