package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tilehook-project/tilehook/internal/api"
	"github.com/tilehook-project/tilehook/internal/capture"
	inspector "github.com/tilehook-project/tilehook/internal/cli"
	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/scheduler"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/util"
	"github.com/tilehook-project/tilehook/internal/wire"
)

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "run the interactive setup wizard and save the config",
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			return err
		}
		if err := validate(cfg); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Configuration saved to %s\n", cfg.Path())
		return nil
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the inspection API, scheduler and telemetry until interrupted",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "shell", Usage: "also run the inspector shell on stdin"},
	},
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		if err := validate(cfg); err != nil {
			return err
		}

		p, err := newPipeline(cfg, pipelineOptions{capture: true})
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)

		sysInfo := util.GetSystemInfo()
		log.Info().
			Str("hostname", sysInfo.Hostname).
			Str("os", sysInfo.OS).
			Int("cores", sysInfo.CPUCores).
			Uint64("memory_mb", sysInfo.TotalMemory).
			Msg("system information")

		if cfg.GetAPI().Enabled {
			srv := api.NewServer(cfg, api.Deps{
				Version:     Version,
				EventBus:    p.bus,
				Codec:       p.codec,
				Interceptor: p.interceptor,
				Stats:       p.stats,
				Metrics:     telemetry.NewMetricsRegistry(p.stats),
				Store:       p.store,
			})
			g.Go(func() error { return srv.Start(ctx) })
		}

		sched := scheduler.NewScheduler(cfg, p.bus, p.stats, p.store)
		g.Go(func() error {
			sched.Start(ctx)
			return nil
		})

		if mc := cfg.GetMQTT(); mc.Enabled {
			interval := time.Duration(cfg.GetTimers().StatsPublishInterval) * time.Second
			pub, err := telemetry.NewMQTTPublisher(mc, p.bus, p.stats, interval)
			if err != nil {
				log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			} else {
				g.Go(func() error {
					// broker outages are not fatal
					if err := pub.Start(ctx); err != nil {
						log.Warn().Err(err).Msg("MQTT telemetry failed")
					}
					return nil
				})
			}
		}

		if c.Bool("shell") {
			sh := inspector.NewShell(inspector.Deps{
				Config:      cfg,
				EventBus:    p.bus,
				Codec:       p.codec,
				Interceptor: p.interceptor,
				Stats:       p.stats,
				Store:       p.store,
			}, os.Stdin, os.Stdout)
			g.Go(func() error {
				if err := sh.Run(ctx); err != nil {
					return err
				}
				// leaving the shell stops the server
				return errShellExit
			})
		}

		err = g.Wait()
		if errors.Is(err, errShellExit) || errors.Is(err, context.Canceled) {
			err = nil
		}
		log.Info().Msg("tilehook stopped")
		return err
	},
}

var errShellExit = errors.New("shell exited")

var filterCmd = &cli.Command{
	Name:      "filter",
	Usage:     "run a raw frame stream through the interception hooks",
	ArgsUsage: "[input [output]]",
	Description: "Reads length-prefixed frames from input (default stdin), applies the\n" +
		"configured rules and writes the forwarded frames to output (default stdout).",
	Flags: []cli.Flag{
		sideFlag,
		&cli.BoolFlag{Name: "strict", Usage: "drop frames that fail to decode instead of passing them through"},
		&cli.BoolFlag{Name: "no-capture", Usage: "do not record a capture even if capture is enabled"},
	},
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		side, err := sideOf(cfg, c.String(sideFlag.Name))
		if err != nil {
			return err
		}

		in, out := io.Reader(os.Stdin), io.Writer(os.Stdout)
		if path := c.Args().Get(0); path != "" && path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		if path := c.Args().Get(1); path != "" && path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		p, err := newPipeline(cfg, pipelineOptions{
			strict:  c.Bool("strict"),
			capture: !c.Bool("no-capture"),
		})
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bw := bufio.NewWriter(out)
		n, err := p.interceptor.ProcessStream(ctx, bufio.NewReader(in), bw, side)
		if flushErr := bw.Flush(); err == nil {
			err = flushErr
		}

		t := p.stats.Totals()
		log.Info().
			Int("frames", n).
			Int64("dropped", t.Dropped).
			Int64("rewritten", t.Rewritten).
			Int64("unknown", t.Unknown).
			Int64("errors", t.Errors).
			Msg("filter finished")
		return err
	},
}

var decodeCmd = &cli.Command{
	Name:      "decode",
	Usage:     "decode frames given as hex arguments or read from a raw file",
	ArgsUsage: "<hex>...",
	Flags: []cli.Flag{
		sideFlag,
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "read length-prefixed frames from this file"},
	},
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		side, err := sideOf(cfg, c.String(sideFlag.Name))
		if err != nil {
			return err
		}
		codec := newCodec(cfg, telemetry.NewStats())

		var frames [][]byte
		if path := c.String("file"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			r := bufio.NewReader(f)
			for {
				frame, err := wire.ReadFrame(r)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				frames = append(frames, frame)
			}
		} else {
			if c.NArg() == 0 {
				return fmt.Errorf("frame hex or --file required")
			}
			s := strings.TrimPrefix(strings.Join(c.Args().Slice(), ""), "0x")
			frame, err := hex.DecodeString(s)
			if err != nil {
				return fmt.Errorf("frame is not valid hex: %w", err)
			}
			frames = append(frames, frame)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		var failed int
		for i, frame := range frames {
			p, err := codec.Decode(frame, side)
			if err != nil {
				failed++
				log.Error().Err(err).Int("frame", i).Msg("decode failed")
				continue
			}
			if err := enc.Encode(map[string]interface{}{
				"kind":   p.Kind(),
				"name":   p.Kind().String(),
				"packet": p,
			}); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d frames failed to decode", failed, len(frames))
		}
		return nil
	},
}

var replayCmd = &cli.Command{
	Name:      "replay",
	Usage:     "decode and re-encode every record of a capture and report mismatches",
	ArgsUsage: "<capture file>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("exactly one capture file required")
		}
		cfg := configFrom(c)
		report, err := capture.Replay(c.Args().First(), newCodec(cfg, telemetry.NewStats()))

		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"Session", "Records", "Decoded", "Unknown", "Failed", "Mismatched"})
		tw.Append([]string{
			report.SessionID,
			fmt.Sprint(report.Records),
			fmt.Sprint(report.Decoded),
			fmt.Sprint(report.Unknown),
			fmt.Sprint(report.Failed),
			fmt.Sprint(report.Mismatched),
		})
		tw.Render()

		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return fmt.Errorf("replay found %d failures and %d mismatches", report.Failed, report.Mismatched)
		}
		return nil
	},
}

var importCmd = &cli.Command{
	Name:      "import",
	Usage:     "convert a raw frame dump into a capture file",
	ArgsUsage: "<raw file>",
	Flags: []cli.Flag{
		sideFlag,
		&cli.StringFlag{Name: "dir", Usage: "output directory; defaults to capture.directory"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("exactly one input file required")
		}
		cfg := configFrom(c)
		side, err := sideOf(cfg, c.String(sideFlag.Name))
		if err != nil {
			return err
		}
		dir := c.String("dir")
		if dir == "" {
			dir = cfg.GetCapture().Directory
		}

		src, err := os.Open(c.Args().First())
		if err != nil {
			return err
		}
		defer src.Close()

		rec, err := capture.NewRecorder(dir)
		if err != nil {
			return err
		}
		n, err := capture.ImportStream(bufio.NewReader(src), side, rec)
		if closeErr := rec.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d frames into %s\n", n, rec.Path())
		return nil
	},
}

var shellCmd = &cli.Command{
	Name:  "shell",
	Usage: "interactive inspector for decoding and rewriting frames",
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		p, err := newPipeline(cfg, pipelineOptions{})
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return inspector.NewShell(inspector.Deps{
			Config:      cfg,
			EventBus:    p.bus,
			Codec:       p.codec,
			Interceptor: p.interceptor,
			Stats:       p.stats,
			Store:       p.store,
		}, os.Stdin, os.Stdout).Run(ctx)
	},
}

var kindsCmd = &cli.Command{
	Name:  "kinds",
	Usage: "list registered packet and tile entity kinds",
	Action: func(c *cli.Context) error {
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"Scope", "ID", "Name", "Index Width"})
		for _, k := range protocol.PacketKinds() {
			tw.Append([]string{"packet", fmt.Sprint(k.ID), k.Name, ""})
		}
		for _, k := range protocol.TileEntityKinds() {
			tw.Append([]string{"tile_entity", fmt.Sprint(k.ID), k.Name, fmt.Sprint(k.IndexWidth)})
		}
		tw.Render()
		return nil
	},
}
