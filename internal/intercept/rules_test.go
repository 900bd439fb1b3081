package intercept

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

const sampleRules = `
rules:
  - name: no-teleport
    action: drop
    kinds: [Teleport, "107"]
    side: client
  - name: cap-health
    action: clamp_health
    max_life: 500
  - name: watch-kicks
    action: log
    kinds: [kick]
  - name: disabled
    action: drop
    kinds: [PlayerHealth]
    enabled: false
`

func TestParseRules(t *testing.T) {
	rs, err := ParseRules([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, rs.Rules, 4)

	assert.Equal(t, []protocol.PacketKind{protocol.PacketTeleport, protocol.PacketSmartTextMessage}, rs.Rules[0].kinds)
	require.NotNil(t, rs.Rules[0].side)
	assert.Equal(t, protocol.ClientSide, *rs.Rules[0].side)
	assert.Equal(t, []protocol.PacketKind{protocol.PacketPlayerHealth}, rs.Rules[1].kinds)
	assert.Nil(t, rs.Rules[1].side)
	assert.False(t, rs.Rules[3].IsEnabled())
}

func TestParseRulesErrors(t *testing.T) {
	tests := []struct {
		desc string
		yaml string
	}{
		{"unknown action", "rules:\n  - action: explode\n    kinds: [Kick]\n"},
		{"drop without kinds", "rules:\n  - action: drop\n"},
		{"bad kind", "rules:\n  - action: drop\n    kinds: [Nothing]\n"},
		{"bad side", "rules:\n  - action: drop\n    kinds: [Kick]\n    side: both\n"},
		{"clamp without max", "rules:\n  - action: clamp_health\n"},
		{"clamp with kinds", "rules:\n  - action: clamp_health\n    max_life: 5\n    kinds: [Kick]\n"},
		{"duplicate names", "rules:\n  - name: a\n    action: log\n    kinds: [Kick]\n  - name: a\n    action: log\n    kinds: [Kick]\n"},
		{"not yaml", "rules: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := ParseRules([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestRulesInstall(t *testing.T) {
	rs, err := ParseRules([]byte(sampleRules))
	require.NoError(t, err)

	i := NewInterceptor(nil)
	assert.Equal(t, 3, rs.Install(i))
	assert.Equal(t, 1, i.HookCount(protocol.PacketTeleport))
	assert.Equal(t, 1, i.HookCount(protocol.PacketPlayerHealth))
	assert.Equal(t, 1, i.HookCount(protocol.PacketKick))

	ctx := context.Background()
	tp, err := protocol.Encode(&protocol.Teleport{PlayerSlot: 1}, protocol.ClientSide)
	require.NoError(t, err)

	_, forward, err := i.Process(ctx, tp, protocol.ClientSide)
	require.NoError(t, err)
	assert.False(t, forward)

	// server-produced teleports are not matched
	_, forward, err = i.Process(ctx, tp, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)

	out, forward, err := i.Process(ctx, healthFrame, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, []byte{8, 0, 16, 3, 0xF4, 0x01, 0xF4, 0x01}, out)

	kick, err := protocol.Encode(&protocol.Kick{Reason: protocol.LiteralText("bye")}, protocol.ServerSide)
	require.NoError(t, err)
	out, forward, err = i.Process(ctx, kick, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, kick, out)
}

func TestClampHealthLeavesLowValues(t *testing.T) {
	rs, err := ParseRules([]byte("rules:\n  - action: clamp_health\n    max_life: 1000\n"))
	require.NoError(t, err)
	i := NewInterceptor(nil)
	rs.Install(i)

	out, forward, err := i.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, healthFrame, out)
}

func TestLoadRules(t *testing.T) {
	rs, err := LoadRules("")
	require.NoError(t, err)
	assert.Empty(t, rs.Rules)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0644))
	rs, err = LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 4)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
