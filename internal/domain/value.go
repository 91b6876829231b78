package domain

import (
	"encoding/json"
)

// ValueKind tags which payload a SignalValue carries.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueNumeric
	ValueText
	ValueJSON
)

// SignalValue is the tagged variant behind a signal's polymorphic payload.
// Exactly one of the numeric/text/json payloads is populated; the storage
// encoding is three nullable columns, but in memory only one can be set.
type SignalValue struct {
	kind ValueKind
	num  float64
	text string
	doc  json.RawMessage
}

// NumericValue builds a numeric signal value.
func NumericValue(v float64) SignalValue {
	return SignalValue{kind: ValueNumeric, num: v}
}

// TextValue builds a text signal value.
func TextValue(v string) SignalValue {
	return SignalValue{kind: ValueText, text: v}
}

// JSONValue builds a structured signal value.
func JSONValue(doc json.RawMessage) SignalValue {
	return SignalValue{kind: ValueJSON, doc: doc}
}

// Kind returns the populated payload tag.
func (v SignalValue) Kind() ValueKind { return v.kind }

// Num returns the numeric payload and whether it is set.
func (v SignalValue) Num() (float64, bool) {
	return v.num, v.kind == ValueNumeric
}

// Text returns the text payload and whether it is set.
func (v SignalValue) Text() (string, bool) {
	return v.text, v.kind == ValueText
}

// JSON returns the structured payload and whether it is set.
func (v SignalValue) JSON() (json.RawMessage, bool) {
	return v.doc, v.kind == ValueJSON
}

// IsZero reports whether no payload is populated.
func (v SignalValue) IsZero() bool { return v.kind == ValueNone }
