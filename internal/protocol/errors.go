package protocol

import (
	"errors"
	"fmt"
)

const (
	OpDecode = "decode"
	OpEncode = "encode"
)

// Scope tells which id space a CodecError's kind belongs to.
type Scope string

const (
	ScopePacket     Scope = "packet"
	ScopeTileEntity Scope = "tile_entity"
)

var (
	ErrBadLength       = errors.New("declared length out of range")
	ErrOversizedBody   = errors.New("encoded packet exceeds maximum length")
	ErrNilPacket       = errors.New("nil packet")
	ErrIndexOverflow   = errors.New("tile entity index does not fit its width")
	ErrMissingEntity   = errors.New("tile entity required but missing")
	ErrMissingModule   = errors.New("net module body required but missing")
	ErrTooManyElements = errors.New("too many elements for count field")
	ErrNestingTooDeep  = errors.New("nesting too deep")
)

// CodecError is the single error type returned by the envelope and
// tile-entity entry points. The original cause is available via Unwrap.
type CodecError struct {
	Op    string
	Scope Scope
	Kind  uint8
	Side  Side
	Err   error
}

func (e *CodecError) Error() string {
	name := PacketKind(e.Kind).String()
	if e.Scope == ScopeTileEntity {
		name = TileEntityKind(e.Kind).String()
	}
	return fmt.Sprintf("%s %s %s (%d, %s side): %v", e.Op, e.Scope, name, e.Kind, e.Side, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// InvalidEnumError reports a byte outside a closed enumeration.
type InvalidEnumError struct {
	Field string
	Value int64
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("invalid value %d for %s", e.Value, e.Field)
}

// wrapError wraps err in a CodecError unless one is already in its chain.
func wrapError(err error, op string, scope Scope, kind uint8, side Side) error {
	if err == nil {
		return nil
	}
	var ce *CodecError
	if errors.As(err, &ce) {
		return err
	}
	return &CodecError{Op: op, Scope: scope, Kind: kind, Side: side, Err: err}
}

// panicError turns a recovered value into an error, keeping runtime errors
// (index out of range and friends) in the chain.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
