package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/capture"
	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/db"
	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/intercept"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/util"
)

// pipeline is the wired set of components shared by serve, filter and shell.
type pipeline struct {
	cfg         *config.Config
	bus         *events.EventBus
	stats       *telemetry.Stats
	codec       *protocol.Codec
	store       *db.Store
	interceptor *intercept.Interceptor
	unknowns    *intercept.UnknownQueue
	recorder    *capture.Recorder
}

type pipelineOptions struct {
	strict  bool
	capture bool
}

// unknownSink stores bodies of unregistered packet and tile entity kinds.
type unknownSink struct {
	store *db.Store
}

func (u unknownSink) StoreUnknown(s intercept.UnknownSample) error {
	_, err := u.store.RecordUnknown(string(s.Scope), s.Kind, s.Side.String(), s.Payload, time.Now())
	return err
}

func newCodec(cfg *config.Config, stats *telemetry.Stats) *protocol.Codec {
	return protocol.NewCodec(
		protocol.WithGameData(protocol.NewCatchableSet(cfg.GetCodec().CatchableNPCs...)),
		protocol.WithObserver(stats),
		protocol.WithLogger(util.ComponentLogger("codec")),
	)
}

func newPipeline(cfg *config.Config, opts pipelineOptions) (*pipeline, error) {
	p := &pipeline{
		cfg:   cfg,
		bus:   events.NewEventBus(),
		stats: telemetry.NewStats(),
	}
	p.codec = newCodec(cfg, p.stats)

	dbCfg := cfg.GetDatabase()
	store, err := db.NewStore(dbCfg.Path, dbCfg.SamplesPerKind)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	p.store = store
	p.unknowns = intercept.NewUnknownQueue(unknownSink{store: store}, dbCfg.SampleQueue,
		util.ComponentLogger("unknowns"))

	p.interceptor = intercept.NewInterceptor(p.codec,
		intercept.WithEventBus(p.bus),
		intercept.WithStats(p.stats),
		intercept.WithUnknownRecorder(p.unknowns),
		intercept.WithLogger(util.ComponentLogger("intercept")),
		intercept.WithStrict(opts.strict),
	)

	rulesPath := cfg.GetRules().Path
	if rulesPath != "" && !util.FileExists(rulesPath) {
		log.Debug().Str("path", rulesPath).Msg("no rules file, running without rules")
		rulesPath = ""
	}
	rules, err := intercept.LoadRules(rulesPath)
	if err != nil {
		p.Close()
		return nil, err
	}
	if n := rules.Install(p.interceptor); n > 0 {
		log.Info().Int("rules", n).Str("path", rulesPath).Msg("interception rules installed")
	}

	capCfg := cfg.GetCapture()
	if opts.capture && capCfg.Enabled {
		rec, err := capture.NewRecorder(capCfg.Directory,
			capture.WithIndex(store),
			capture.WithEventBus(p.bus),
		)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.recorder = rec
		p.interceptor.HandleAll("capture", rec.Hook())
	}

	return p, nil
}

// Close flushes the capture and pending unknown samples, then releases the
// store. Safe to call on a partially built pipeline.
func (p *pipeline) Close() {
	if p.recorder != nil {
		if err := p.recorder.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close capture")
		}
	}
	p.bus.Stop()
	if p.unknowns != nil {
		p.unknowns.Close()
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

func sideOf(cfg *config.Config, flag string) (protocol.Side, error) {
	if flag == "" {
		flag = cfg.GetCodec().DefaultSide
	}
	return protocol.ParseSide(flag)
}
