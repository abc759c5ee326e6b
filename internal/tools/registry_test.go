package tools

import (
	"context"
	"testing"
)

type fakeTool struct {
	name   string
	result *Result
}

func (f *fakeTool) Name() string                        { return f.name }
func (f *fakeTool) Description() string                 { return "fake" }
func (f *fakeTool) Parameters() map[string]interface{}  { return map[string]interface{}{"type": "object"} }
func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return f.result
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "echo", result: NewResult("ok")})

	res := r.Execute(context.Background(), "echo", nil)
	if res.IsError || res.ForLLM != "ok" {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil)
	if !res.IsError {
		t.Error("unknown tool should produce an error result, not panic")
	}
}

func TestRegistryNilResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "bad", result: nil})
	res := r.Execute(context.Background(), "bad", nil)
	if res == nil || !res.IsError {
		t.Error("nil tool result should be converted to an error result")
	}
}

func TestDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "zeta", result: NewResult("")})
	r.Register(&fakeTool{name: "alpha", result: NewResult("")})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("definitions = %d", len(defs))
	}
	if defs[0].Function.Name != "alpha" || defs[1].Function.Name != "zeta" {
		t.Errorf("order = %s, %s", defs[0].Function.Name, defs[1].Function.Name)
	}
	if defs[0].Type != "function" {
		t.Errorf("type = %q", defs[0].Type)
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "x", result: NewResult("first")})
	r.Register(&fakeTool{name: "x", result: NewResult("second")})

	res := r.Execute(context.Background(), "x", nil)
	if res.ForLLM != "second" {
		t.Errorf("got %q", res.ForLLM)
	}
	if len(r.Names()) != 1 {
		t.Errorf("names = %v", r.Names())
	}
}
