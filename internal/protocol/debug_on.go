//go:build codecdebug

package protocol

const debugChecks = true
