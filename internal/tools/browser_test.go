package tools

import (
	"context"
	"strings"
	"testing"
)

func TestBrowserToolActionEnum(t *testing.T) {
	bt := NewBrowserTool(nil, t.TempDir())

	params := bt.Parameters()
	props := params["properties"].(map[string]interface{})
	enum := props["action"].(map[string]interface{})["enum"].([]string)

	have := make(map[string]bool, len(enum))
	for _, a := range enum {
		have[a] = true
	}
	for _, want := range []string{
		"start", "stop", "status", "close_tab", "download", "upload",
		"trace", "navigate", "snapshot", "click", "act", "find",
	} {
		if !have[want] {
			t.Errorf("action %q missing from enum", want)
		}
	}
}

func TestBrowserToolValidatesArgs(t *testing.T) {
	bt := NewBrowserTool(nil, t.TempDir())

	tests := []struct {
		args map[string]interface{}
		want string
	}{
		{map[string]interface{}{"action": "navigate"}, "url is required"},
		{map[string]interface{}{"action": "download"}, "url is required"},
		{map[string]interface{}{"action": "upload"}, "path is required"},
		{map[string]interface{}{"action": "click"}, "target is required"},
		{map[string]interface{}{"action": "switch_tab"}, "index is required"},
		{map[string]interface{}{"action": "bogus"}, "unknown action"},
	}
	for _, tt := range tests {
		res := bt.Execute(context.Background(), tt.args)
		if !res.IsError {
			t.Errorf("%v: expected error result", tt.args)
			continue
		}
		if !strings.Contains(res.ForLLM, tt.want) {
			t.Errorf("%v: result = %q, want substring %q", tt.args, res.ForLLM, tt.want)
		}
	}
}
