//go:build !codecdebug

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeftoverBodyBytesIgnored(t *testing.T) {
	// RequestWorldInfo has no body, the two bytes are left unread
	p, err := Decode([]byte{5, 0, 6, 1, 2}, ServerSide)
	require.NoError(t, err)
	assert.IsType(t, &RequestWorldInfo{}, p)
}
