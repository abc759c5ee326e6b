package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nanocat-ai/nanocat/internal/cron"
)

// CronTool lets the agent schedule recurring reminders and tasks. Delivery
// targets come from the tool context so reminders return to the chat that
// created them.
type CronTool struct {
	service *cron.Service
}

func NewCronTool(service *cron.Service) *CronTool {
	return &CronTool{service: service}
}

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "Schedule recurring tasks with cron expressions: add, list, remove, enable, disable"
}
func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "list", "remove", "enable", "disable"},
				"description": "The cron operation to perform",
			},
			"schedule": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression (e.g. '0 9 * * *' for 9am daily), required for add",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "What the agent should do when the schedule fires, required for add",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Job id for remove/enable/disable",
			},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)

	switch action {
	case "add":
		schedule, _ := args["schedule"].(string)
		message, _ := args["message"].(string)
		if schedule == "" || message == "" {
			return ErrorResult("schedule and message are required for add")
		}
		channel := ChannelFromCtx(ctx)
		chatID := ChatIDFromCtx(ctx)
		if channel == "" || chatID == "" {
			return ErrorResult("no delivery target in context")
		}
		job, err := t.service.Add(schedule, message, channel, chatID)
		if err != nil {
			return ErrorResult(err.Error())
		}
		return SilentResult(fmt.Sprintf("Scheduled job %s: %q at %q", job.ID, message, schedule))

	case "list":
		jobs := t.service.List()
		if len(jobs) == 0 {
			return SilentResult("No scheduled jobs.")
		}
		var b strings.Builder
		for _, j := range jobs {
			state := "enabled"
			if !j.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(&b, "%s  %-14s %s (%s)\n", j.ID, j.Schedule, j.Message, state)
		}
		return SilentResult(b.String())

	case "remove":
		id, _ := args["id"].(string)
		if id == "" {
			return ErrorResult("id is required for remove")
		}
		if !t.service.Remove(id) {
			return ErrorResult(fmt.Sprintf("job not found: %s", id))
		}
		return SilentResult(fmt.Sprintf("Removed job %s", id))

	case "enable", "disable":
		id, _ := args["id"].(string)
		if id == "" {
			return ErrorResult("id is required")
		}
		if !t.service.SetEnabled(id, action == "enable") {
			return ErrorResult(fmt.Sprintf("job not found: %s", id))
		}
		return SilentResult(fmt.Sprintf("Job %s %sd", id, action))

	default:
		return ErrorResult(fmt.Sprintf("unknown action: %s", action))
	}
}
