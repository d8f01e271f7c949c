package rpc

import (
	"net"
	"testing"
	"time"

	"github.com/gitrdm/lambdust/pkg/value"
)

func TestEncodeDecodeRoundTripsPrimitives(t *testing.T) {
	cases := []value.Value{
		value.Nil{},
		value.Bool(true),
		value.Int(42),
		value.Float(3.5),
		value.NewString("hi"),
	}
	for _, v := range cases {
		w, err := Encode(v, nil)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", v, err)
		}
		got, err := Decode(w, nil)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !value.Equal(v, got) {
			t.Fatalf("round-trip mismatch: got %#v, want %#v", got, v)
		}
	}
}

func TestEncodeListRoundTrips(t *testing.T) {
	list := value.NewPair(value.Int(1), value.NewPair(value.Int(2), value.Nil{}))
	w, err := Encode(list, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(w.List) != 2 {
		t.Fatalf("got %d list items, want 2", len(w.List))
	}
	got, err := Decode(w, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotPair, ok := got.(*value.Pair)
	if !ok {
		t.Fatalf("got %#v, want *value.Pair", got)
	}
	if n, ok := gotPair.Car().(value.Int); !ok || n != 1 {
		t.Fatalf("got car %#v, want 1", gotPair.Car())
	}
}

func TestEncodeProcedureFailsWithFfiError(t *testing.T) {
	proc := value.NewPrimitive("p", 0, 0, func([]value.Value) (value.Value, error) { return value.Unspecified{}, nil })
	_, err := Encode(proc, nil)
	if _, ok := err.(*FfiError); !ok {
		t.Fatalf("got %v, want *FfiError", err)
	}
}

func TestServerReturnsNotFoundForUnknownService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(nil)
	go srv.Serve(ln)
	defer srv.Close()

	client, err := Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_, err = client.Call("nope", "method", nil, time.Second)
	if err == nil {
		t.Fatal("expected an error for an unregistered service")
	}
	want := "Service 'nope' not found"
	if got := err.Error(); got != "rpc: "+want {
		t.Fatalf("got %q, want %q", got, "rpc: "+want)
	}
}

func TestServerDispatchesRegisteredMethod(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(nil)
	svc := NewService("math")
	svc.Register("add", func(args []Wire) (Wire, error) {
		a, err := Decode(args[0], nil)
		if err != nil {
			return Wire{}, err
		}
		b, err := Decode(args[1], nil)
		if err != nil {
			return Wire{}, err
		}
		sum := int64(a.(value.Int)) + int64(b.(value.Int))
		return Encode(value.Int(sum), nil)
	})
	srv.RegisterService(svc)
	go srv.Serve(ln)
	defer srv.Close()

	client, err := Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	two, _ := Encode(value.Int(2), nil)
	three, _ := Encode(value.Int(3), nil)
	w, err := client.Call("math", "add", []Wire{two, three}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Int == nil || *w.Int != 5 {
		t.Fatalf("got %#v, want int 5", w)
	}
}
