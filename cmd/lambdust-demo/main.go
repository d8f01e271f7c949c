// Package main demonstrates the lambdust runtime façade: evaluating
// expressions in parallel across worker threads, then making one
// math.add call over the RPC transport to a locally started server.
package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gitrdm/lambdust/pkg/eval"
	"github.com/gitrdm/lambdust/pkg/rpc"
	"github.com/gitrdm/lambdust/pkg/runtime"
	"github.com/gitrdm/lambdust/pkg/value"
)

func main() {
	fmt.Println("=== lambdust-demo ===")
	fmt.Println()

	parallelEval()
	rpcRoundTrip()
}

// parallelEval submits a batch of literal expressions to the runtime and
// prints results in submission order, regardless of which worker
// finished first.
func parallelEval() {
	fmt.Println("1. Parallel evaluation:")

	rt := runtime.New(runtime.Config{MaxWorkers: 4})
	defer rt.Shutdown(context.Background())

	exprs := make([]runtime.ExprSpan, 10)
	for i := range exprs {
		exprs[i] = runtime.ExprSpan{Expr: eval.NewLiteral(value.Int(int64(i*i)), nil)}
	}
	results, errs := rt.EvalParallel(context.Background(), exprs)
	for i, r := range results {
		if errs[i] != nil {
			fmt.Printf("   [%d] error: %v\n", i, errs[i])
			continue
		}
		fmt.Printf("   [%d] => %s\n", i, r.Display(map[interface{}]bool{}))
	}
	fmt.Println()
}

// rpcRoundTrip starts a local RPC server exposing a "math.add" method,
// dials it, and prints the result of a single call.
func rpcRoundTrip() {
	fmt.Println("2. RPC round trip:")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Printf("   listen failed: %v\n", err)
		return
	}

	srv := rpc.NewServer(nil)
	math := rpc.NewService("math")
	math.Register("add", func(args []rpc.Wire) (rpc.Wire, error) {
		a, err := rpc.Decode(args[0], nil)
		if err != nil {
			return rpc.Wire{}, err
		}
		b, err := rpc.Decode(args[1], nil)
		if err != nil {
			return rpc.Wire{}, err
		}
		sum := int64(a.(value.Int)) + int64(b.(value.Int))
		return rpc.Encode(value.Int(sum), nil)
	})
	srv.RegisterService(math)
	go srv.Serve(ln)
	defer srv.Close()

	client, err := rpc.Dial("tcp", ln.Addr().String())
	if err != nil {
		fmt.Printf("   dial failed: %v\n", err)
		return
	}
	defer client.Close()

	two, _ := rpc.Encode(value.Int(2), nil)
	three, _ := rpc.Encode(value.Int(3), nil)
	w, err := client.Call("math", "add", []rpc.Wire{two, three}, time.Second)
	if err != nil {
		fmt.Printf("   call failed: %v\n", err)
		return
	}
	fmt.Printf("   math.add(2, 3) => %d\n", *w.Int)
	fmt.Println()
}
