// Package rpc implements the length-prefixed JSON-framed RPC transport of
// spec §4.9/§6 (C10): each node exposes named services over a stream
// socket, requests and responses are framed with a 4-byte big-endian
// length prefix, and Scheme values crossing the boundary are encoded
// into a closed, serializable JSON value form.
//
// Grounded on the teacher's constraint-store encode/decode pattern
// (pkg/minikanren: a closed tagged-union Go type with a matching JSON
// shape) adapted from constraint terms to Scheme values, and on
// original_source/src/rpc (the Rust project this spec was distilled
// from) for the wire schema's exact tag names.
package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gitrdm/lambdust/pkg/value"
)

// FfiError reports a value that cannot cross the RPC boundary (§4.9:
// "Unserializable values (procedures, ports, continuations) fail with
// FfiError").
type FfiError struct {
	Kind string
}

func (e *FfiError) Error() string { return "ffi: cannot serialize a " + e.Kind + " across RPC" }

// Wire is the closed serializable-value JSON shape of §4.9. Exactly one
// field is populated per encoded value; json.Marshal/Unmarshal round-trip
// it directly since every field is `omitempty`.
type Wire struct {
	Nil   *struct{}          `json:"nil,omitempty"`
	Bool  *bool              `json:"bool,omitempty"`
	Int   *int64             `json:"int,omitempty"`
	Float *float64           `json:"float,omitempty"`
	Str   *string            `json:"str,omitempty"`
	Sym   *string            `json:"sym,omitempty"`
	List  []Wire             `json:"list,omitempty"`
	Vec   []Wire             `json:"vec,omitempty"`
	Map   map[string]Wire    `json:"map,omitempty"`
	// Bytes is []int rather than []byte so json.Marshal emits a literal
	// JSON array of numbers (§4.9: `{"bytes":[…]}`) instead of Go's
	// default base64-string encoding for []byte.
	Bytes []int `json:"bytes,omitempty"`
}

// Encode converts a Scheme value into its wire form. Interner resolves a
// Symbol to its source text; pass nil to encode symbols as their raw
// numeric id formatted as a string (only meaningful to a peer sharing the
// same intern table, so a real Interner should be supplied whenever
// possible).
func Encode(v value.Value, interner SymbolNamer) (Wire, error) {
	switch t := v.(type) {
	case nil:
		return Wire{}, fmt.Errorf("rpc: cannot encode a nil Go value")
	case value.Nil:
		return Wire{Nil: &struct{}{}}, nil
	case value.Unspecified:
		return Wire{Nil: &struct{}{}}, nil
	case value.Bool:
		b := bool(t)
		return Wire{Bool: &b}, nil
	case value.Int:
		n := int64(t)
		return Wire{Int: &n}, nil
	case value.Float:
		f := float64(t)
		return Wire{Float: &f}, nil
	case *value.String:
		s := t.Go()
		return Wire{Str: &s}, nil
	case value.Symbol:
		s := symbolText(uint64(t), interner)
		return Wire{Sym: &s}, nil
	case *value.Pair:
		items, err := encodeList(t, interner)
		if err != nil {
			return Wire{}, err
		}
		return Wire{List: items}, nil
	case *value.Vector:
		n := t.Len()
		items := make([]Wire, n)
		for i := 0; i < n; i++ {
			ev, err := t.Ref(i)
			if err != nil {
				return Wire{}, err
			}
			w, err := Encode(ev, interner)
			if err != nil {
				return Wire{}, err
			}
			items[i] = w
		}
		return Wire{Vec: items}, nil
	case *value.HashTable:
		m := make(map[string]Wire, t.Len())
		for _, kv := range t.Entries() {
			w, err := Encode(kv.Val, interner)
			if err != nil {
				return Wire{}, err
			}
			m[kv.Key.Display(map[interface{}]bool{})] = w
		}
		return Wire{Map: m}, nil
	case *value.Bytevector:
		raw := t.Bytes()
		ints := make([]int, len(raw))
		for i, b := range raw {
			ints[i] = int(b)
		}
		return Wire{Bytes: ints}, nil
	case *value.Procedure:
		return Wire{}, &FfiError{Kind: "procedure"}
	case *value.Port:
		return Wire{}, &FfiError{Kind: "port"}
	case *value.Continuation:
		return Wire{}, &FfiError{Kind: "continuation"}
	case *value.Promise:
		return Wire{}, &FfiError{Kind: "promise"}
	case *value.Record:
		return Wire{}, &FfiError{Kind: "record"}
	default:
		return Wire{}, &FfiError{Kind: v.Kind().String()}
	}
}

func encodeList(p *value.Pair, interner SymbolNamer) ([]Wire, error) {
	var items []Wire
	var cur value.Value = p
	for {
		pair, ok := cur.(*value.Pair)
		if !ok {
			if _, ok := cur.(value.Nil); ok {
				return items, nil
			}
			return nil, fmt.Errorf("rpc: cannot encode an improper list")
		}
		w, err := Encode(pair.Car(), interner)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
		cur = pair.Cdr()
	}
}

// SymbolNamer resolves an interned symbol id to its source text. Satisfied
// by *intern.Table.
type SymbolNamer interface {
	Name(id uint64) (string, bool)
}

func symbolText(id uint64, namer SymbolNamer) string {
	if namer == nil {
		return fmt.Sprintf("#%d", id)
	}
	if name, ok := namer.Name(id); ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// SymbolInterner resolves source text to an interned symbol id, the
// inverse of SymbolNamer. Satisfied by *intern.Table.
type SymbolInterner interface {
	Intern(name string) uint64
}

// Decode converts a wire value back into a Scheme value. interner, if
// non-nil, interns Sym's text into this process's symbol space;
// otherwise Sym is rejected since a raw numeric-id encoding cannot be
// safely reconstructed across processes.
func Decode(w Wire, interner SymbolInterner) (value.Value, error) {
	switch {
	case w.Nil != nil:
		return value.Nil{}, nil
	case w.Bool != nil:
		return value.Bool(*w.Bool), nil
	case w.Int != nil:
		return value.Int(*w.Int), nil
	case w.Float != nil:
		return value.Float(*w.Float), nil
	case w.Str != nil:
		return value.NewString(*w.Str), nil
	case w.Sym != nil:
		if interner == nil {
			return nil, fmt.Errorf("rpc: cannot decode a symbol without an interner")
		}
		return value.Symbol(interner.Intern(*w.Sym)), nil
	case w.List != nil:
		var result value.Value = value.Nil{}
		for i := len(w.List) - 1; i >= 0; i-- {
			v, err := Decode(w.List[i], interner)
			if err != nil {
				return nil, err
			}
			result = value.NewPair(v, result)
		}
		return result, nil
	case w.Vec != nil:
		slots := make([]value.Value, len(w.Vec))
		for i, item := range w.Vec {
			v, err := Decode(item, interner)
			if err != nil {
				return nil, err
			}
			slots[i] = v
		}
		return value.NewVector(slots), nil
	case w.Map != nil:
		ht := value.NewHashTable()
		for k, item := range w.Map {
			v, err := Decode(item, interner)
			if err != nil {
				return nil, err
			}
			ht.Set(value.NewString(k), v)
		}
		return ht, nil
	case w.Bytes != nil:
		raw := make([]byte, len(w.Bytes))
		for i, n := range w.Bytes {
			raw[i] = byte(n)
		}
		return value.NewBytevector(raw), nil
	default:
		// An empty Wire with every field nil is indistinguishable from
		// {"nil":null} once unmarshalled: `list`/`vec`/`map` of length 0
		// and omitempty both serialize to an absent field. Treat it as
		// Nil, the JSON spelling's own fallback.
		return value.Nil{}, nil
	}
}

const maxFrameLen = 64 << 20 // generous upper bound against a corrupt length prefix

// WriteFrame writes a 4-byte big-endian length prefix followed by
// payload (§4.9).
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("rpc: frame length %d exceeds maximum %d", n, maxFrameLen)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// MarshalFrame is a convenience wrapper encoding v as JSON and writing it
// as a frame.
func MarshalFrame(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// UnmarshalFrame reads one frame and decodes it into v.
func UnmarshalFrame(r io.Reader, v interface{}) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
