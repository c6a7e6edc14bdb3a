package proofhash

import (
	"encoding/json"
	"errors"
)

type Kind string

const (
	KindStructured Kind = "structured"
	KindBinary     Kind = "binary"
)

// Payload is either a structured JSON value or opaque bytes. The kind is fixed
// when the payload is built and decides how it is hashed and stored.
type Payload struct {
	kind      Kind
	value     any
	canonical []byte
	raw       []byte
}

// Structured builds a structured payload from a decoded JSON value.
func Structured(v any) (Payload, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{kind: KindStructured, value: v, canonical: canonical}, nil
}

// StructuredJSON parses data as a single JSON document. The document is
// hashed canonically; Raw still returns data as given.
func StructuredJSON(data []byte) (Payload, error) {
	value, err := parseJSON(data)
	if err != nil {
		return Payload{}, err
	}
	p, err := Structured(value)
	if err != nil {
		return Payload{}, err
	}
	p.raw = data
	return p, nil
}

// FieldJSON builds a structured payload from the value of a JSON form field.
// A value that is itself a JSON string carries the serialized document, so
// "{\"a\":1}" and {"a":1} hash the same.
func FieldJSON(data []byte) (Payload, error) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		data = []byte(text)
	}
	return StructuredJSON(data)
}

func Binary(data []byte) Payload {
	return Payload{kind: KindBinary, raw: data}
}

// Detect treats data as structured when it parses as JSON and as binary
// otherwise. A JSON document that parses but cannot be canonicalized is an
// error, not a binary payload.
func Detect(data []byte) (Payload, error) {
	p, err := StructuredJSON(data)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrInvalidJSON) {
		return Binary(data), nil
	}
	return Payload{}, err
}

func (p Payload) Kind() Kind { return p.kind }

// Value is the decoded JSON value of a structured payload.
func (p Payload) Value() any { return p.value }

// Bytes returns the bytes that are hashed: the canonical
// serialization for structured payloads, the raw bytes otherwise.
func (p Payload) Bytes() []byte {
	if p.kind == KindStructured {
		return p.canonical
	}
	return p.raw
}

func (p Payload) Size() int { return len(p.Bytes()) }

// Raw returns the bytes as they were supplied. Payloads built from a decoded
// value have no other form than their canonical one.
func (p Payload) Raw() []byte {
	if p.raw != nil {
		return p.raw
	}
	return p.Bytes()
}

func (p Payload) ProofHash() string {
	return HashBinary(p.Bytes())
}
