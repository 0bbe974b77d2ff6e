package lua

import (
	"context"
	"errors"
	"sync"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestExecutorExecute(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	e := NewExecutor(L, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	defer e.Close()

	err := e.Execute(ctx, func(L *lua.LState) error {
		L.SetGlobal("x", lua.LNumber(42))
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var got lua.LValue
	if err := e.Execute(ctx, func(L *lua.LState) error {
		got = L.GetGlobal("x")
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if got != lua.LNumber(42) {
		t.Errorf("x = %v, want 42", got)
	}
}

func TestExecutorSerializesCalls(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	e := NewExecutor(L, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	defer e.Close()

	// Concurrent submitters must never observe interleaved execution.
	var mu sync.Mutex
	inFlight := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Execute(ctx, func(L *lua.LState) error {
				mu.Lock()
				inFlight++
				if inFlight != 1 {
					t.Error("overlapping executor calls")
				}
				mu.Unlock()

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
}

func TestExecutorTrapRecovery(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	e := NewExecutor(L, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	defer e.Close()

	err := e.Execute(ctx, func(L *lua.LState) error {
		panic("guest blew up")
	})
	if err == nil {
		t.Fatal("Execute() should return the recovered trap")
	}
}

func TestExecutorClosed(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	e := NewExecutor(L, 4)
	e.Close()

	err := e.Execute(context.Background(), func(L *lua.LState) error { return nil })
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Execute() after Close = %v, want ErrExecutorClosed", err)
	}
	if !e.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
}
