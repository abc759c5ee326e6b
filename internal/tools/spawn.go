package tools

import (
	"context"
	"fmt"
)

// SpawnFunc starts a background subagent working on a task and returns its
// id. The agent package provides the implementation; keeping it a function
// avoids an import cycle between tools and agent.
type SpawnFunc func(ctx context.Context, task, originChannel, originChatID string) (string, error)

// SpawnTool delegates a task to a background subagent. The subagent runs
// with its own session and a restricted tool set, and reports back through
// the system channel when done.
type SpawnTool struct {
	spawn SpawnFunc
}

func NewSpawnTool(spawn SpawnFunc) *SpawnTool {
	return &SpawnTool{spawn: spawn}
}

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Delegate a task to a background subagent. Returns immediately; the result arrives later as a system message."
}
func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "A complete, self-contained description of the task",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	task, _ := args["task"].(string)
	if task == "" {
		return ErrorResult("task is required")
	}

	id, err := t.spawn(ctx, task, ChannelFromCtx(ctx), ChatIDFromCtx(ctx))
	if err != nil {
		return ErrorResult(fmt.Sprintf("spawn failed: %v", err))
	}
	return AsyncResult(fmt.Sprintf("Subagent %s started. Its result will arrive as a system message.", id))
}
