package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tilehook-project/tilehook/internal/wire"
)

// TextMode says how a NetworkText is rendered by the receiver.
type TextMode uint8

const (
	TextLiteral TextMode = iota
	TextFormattable
	TextLocalizationKey
)

var textModeNames = map[TextMode]string{
	TextLiteral:         "literal",
	TextFormattable:     "formattable",
	TextLocalizationKey: "localization_key",
}

func (m TextMode) String() string {
	if s, ok := textModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

const maxTextDepth = 16

// NetworkText is a literal string, a format string or a localization key.
// Non-literal texts carry substitutions that are NetworkTexts themselves.
type NetworkText struct {
	Mode          TextMode      `json:"mode"`
	Text          string        `json:"text"`
	Substitutions []NetworkText `json:"substitutions,omitempty"`
}

// LiteralText returns a NetworkText shown as-is.
func LiteralText(s string) NetworkText {
	return NetworkText{Mode: TextLiteral, Text: s}
}

// String renders the text without a localization table: keys are kept as
// they are and {n} placeholders are filled from the substitutions.
func (t NetworkText) String() string {
	if t.Mode == TextLiteral || len(t.Substitutions) == 0 {
		return t.Text
	}
	pairs := make([]string, 0, 2*len(t.Substitutions))
	for i, sub := range t.Substitutions {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", sub.String())
	}
	return strings.NewReplacer(pairs...).Replace(t.Text)
}

func readNetworkText(r *wire.Reader) (NetworkText, error) {
	return readNetworkTextDepth(r, 0)
}

func readNetworkTextDepth(r *wire.Reader, depth int) (t NetworkText, err error) {
	if depth > maxTextDepth {
		return t, fmt.Errorf("network text: %w", ErrNestingTooDeep)
	}
	mode, err := r.ReadUint8()
	if err != nil {
		return t, err
	}
	t.Mode = TextMode(mode)
	if t.Mode > TextLocalizationKey {
		return t, &InvalidEnumError{Field: "NetworkText.Mode", Value: int64(mode)}
	}
	if t.Text, err = r.ReadString(); err != nil {
		return t, err
	}
	if t.Mode == TextLiteral {
		return t, nil
	}
	n, err := r.ReadUint8()
	if err != nil {
		return t, err
	}
	if n == 0 {
		return t, nil
	}
	t.Substitutions = make([]NetworkText, n)
	for i := range t.Substitutions {
		if t.Substitutions[i], err = readNetworkTextDepth(r, depth+1); err != nil {
			return t, err
		}
	}
	return t, nil
}

func writeNetworkText(w *wire.Writer, t NetworkText) error {
	if t.Mode > TextLocalizationKey {
		return &InvalidEnumError{Field: "NetworkText.Mode", Value: int64(t.Mode)}
	}
	w.WriteUint8(uint8(t.Mode)).WriteString(t.Text)
	if t.Mode == TextLiteral {
		return nil
	}
	if len(t.Substitutions) > 0xFF {
		return fmt.Errorf("network text substitutions: %w (%d)", ErrTooManyElements, len(t.Substitutions))
	}
	w.WriteUint8(uint8(len(t.Substitutions)))
	for _, sub := range t.Substitutions {
		if err := writeNetworkText(w, sub); err != nil {
			return err
		}
	}
	return nil
}
