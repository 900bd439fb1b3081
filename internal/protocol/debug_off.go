//go:build !codecdebug

package protocol

const debugChecks = false
