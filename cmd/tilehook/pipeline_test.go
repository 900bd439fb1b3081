package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/capture"
	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/protocol"
)

var healthFrame = []byte{8, 0, 16, 3, 0x58, 0x02, 0x58, 0x02}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "tilehook.db")
	cfg.Capture.Directory = filepath.Join(dir, "captures")
	cfg.Rules.Path = filepath.Join(dir, "rules.yaml")
	return cfg
}

func TestPipelineWithoutRulesFile(t *testing.T) {
	p, err := newPipeline(testConfig(t), pipelineOptions{capture: true})
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.recorder)
	assert.Equal(t, 0, p.interceptor.HookCount(protocol.PacketPlayerHealth))
}

func TestPipelineRulesAndUnknowns(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Rules.Path, []byte(`
rules:
  - name: cap-health
    action: clamp_health
    max_life: 500
`), 0644))

	p, err := newPipeline(cfg, pipelineOptions{})
	require.NoError(t, err)
	defer p.Close()

	out, forward, err := p.interceptor.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, []byte{8, 0, 16, 3, 0xF4, 0x01, 0xF4, 0x01}, out)

	_, forward, err = p.interceptor.Process(context.Background(), []byte{5, 0, 250, 1, 2}, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)

	share, err := protocol.Encode(&protocol.TileEntitySharing{
		ID:     9,
		IsNew:  true,
		Entity: &protocol.UnknownTileEntity{ID: 200, Payload: []byte{7}},
	}, protocol.ServerSide)
	require.NoError(t, err)
	_, forward, err = p.interceptor.Process(context.Background(), share, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)

	// samples are written by the queue worker
	p.unknowns.Close()

	kinds, err := p.store.UnknownKinds()
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	scopes := map[string]uint8{}
	for _, k := range kinds {
		scopes[k.Scope] = k.Kind
	}
	assert.Equal(t, map[string]uint8{"packet": 250, "tile_entity": 200}, scopes)

	samples, err := p.store.UnknownSamples("tile_entity", 200, 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, []byte{7}, samples[0].Payload)
}

func TestPipelineCapture(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Enabled = true

	p, err := newPipeline(cfg, pipelineOptions{capture: true})
	require.NoError(t, err)
	require.NotNil(t, p.recorder)

	_, _, err = p.interceptor.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	path := p.recorder.Path()

	caps, err := p.store.Captures()
	require.NoError(t, err)
	require.Len(t, caps, 1)
	p.Close()

	hdr, records, err := capture.ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, capture.FormatVersion, hdr.Format)
	require.Len(t, records, 1)
	assert.Equal(t, healthFrame, records[0].Frame)
}

func TestSideOf(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Codec.DefaultSide = "server"

	side, err := sideOf(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerSide, side)

	side, err = sideOf(cfg, "c")
	require.NoError(t, err)
	assert.Equal(t, protocol.ClientSide, side)

	_, err = sideOf(cfg, "sideways")
	assert.Error(t, err)
}
