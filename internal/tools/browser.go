package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nanocat-ai/nanocat/internal/browser"
)

// BrowserTool exposes the CDP browser controller to the LLM as a single
// action-discriminated tool. Click and type results come back prefixed with
// [VERIFIED] or an error so the model can tell whether the page reacted.
type BrowserTool struct {
	controller *browser.Controller
	workspace  string
}

func NewBrowserTool(controller *browser.Controller, workspace string) *BrowserTool {
	return &BrowserTool{controller: controller, workspace: workspace}
}

func (t *BrowserTool) Name() string { return "browser" }
func (t *BrowserTool) Description() string {
	return "Control a real web browser: navigate, snapshot interactive elements, click, type, search, screenshot, run JavaScript, manage tabs. Take a snapshot first to get element refs."
}
func (t *BrowserTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"start", "stop", "status",
					"navigate", "snapshot", "click", "type", "search",
					"screenshot", "evaluate", "back", "tabs", "new_tab",
					"switch_tab", "close_tab", "cookies", "storage",
					"console", "errors", "trace", "download", "upload",
					"get_text", "wait", "press", "scroll", "hover", "resize",
					"act", "find",
				},
				"description": "The browser operation to perform",
			},
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL for navigate/new_tab/download",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Local file path for upload",
			},
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Element ref (from snapshot) or visible text, for click/type",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to type, or the search query",
			},
			"submit": map[string]interface{}{
				"type":        "boolean",
				"description": "Press Enter after typing",
			},
			"javascript": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript for evaluate",
			},
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Tab index for switch_tab, or match index for find",
			},
			"seconds": map[string]interface{}{
				"type":        "number",
				"description": "Seconds to wait, for wait",
			},
			"amount": map[string]interface{}{
				"type":        "number",
				"description": "Pixels to scroll (negative scrolls up)",
			},
			"width":  map[string]interface{}{"type": "integer"},
			"height": map[string]interface{}{"type": "integer"},
			"kind": map[string]interface{}{
				"type":        "string",
				"description": "For act: click, type, submit, press, or hover",
			},
			"by": map[string]interface{}{
				"type":        "string",
				"description": "For find: role, text, label, or first",
			},
		},
		"required": []string{"action"},
	}
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)

	switch action {
	case "start":
		if err := t.controller.Connect(); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult("[VERIFIED] Browser started")

	case "stop":
		t.controller.Close()
		return SilentResult("[VERIFIED] Browser stopped")

	case "status":
		return SilentResult(t.controller.Status())

	case "navigate":
		url, _ := args["url"].(string)
		if url == "" {
			return ErrorResult("url is required for navigate")
		}
		if err := t.controller.Navigate(url); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		title, cur, _ := t.controller.PageInfo()
		return SilentResult(fmt.Sprintf("[VERIFIED] Opened %s (%s)", cur, title))

	case "snapshot":
		snap, err := t.controller.Snapshot()
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(snap)

	case "click":
		target, _ := args["target"].(string)
		if target == "" {
			return ErrorResult("target is required for click")
		}
		msg, err := t.controller.Click(target)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(msg)

	case "type":
		target, _ := args["target"].(string)
		text, _ := args["text"].(string)
		if text == "" {
			return ErrorResult("text is required for type")
		}
		submit, _ := args["submit"].(bool)
		msg, err := t.controller.Type(target, text, submit)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(msg)

	case "search":
		query, _ := args["text"].(string)
		if query == "" {
			return ErrorResult("text is required for search")
		}
		msg, err := t.controller.SearchOnSite(query)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(msg)

	case "screenshot":
		path, err := t.controller.Screenshot(filepath.Join(t.workspace, "screenshots"))
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return NewResult(fmt.Sprintf("Screenshot saved. [IMAGE_FILE:%s]", path)).WithMedia(path)

	case "evaluate":
		js, _ := args["javascript"].(string)
		if js == "" {
			return ErrorResult("javascript is required for evaluate")
		}
		out, err := t.controller.Evaluate(js)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(out)

	case "back":
		if err := t.controller.Back(); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		title, cur, _ := t.controller.PageInfo()
		return SilentResult(fmt.Sprintf("[VERIFIED] Went back to %s (%s)", cur, title))

	case "tabs":
		out, err := t.controller.Tabs()
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(out)

	case "new_tab":
		url, _ := args["url"].(string)
		if err := t.controller.NewTab(url); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult("[VERIFIED] Opened new tab")

	case "switch_tab":
		idx := -1
		if f, ok := args["index"].(float64); ok {
			idx = int(f)
		}
		if idx < 0 {
			return ErrorResult("index is required for switch_tab")
		}
		if err := t.controller.SwitchTab(idx); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(fmt.Sprintf("[VERIFIED] Switched to tab %d", idx))

	case "close_tab":
		idx := -1
		if f, ok := args["index"].(float64); ok {
			idx = int(f)
		}
		if err := t.controller.CloseTab(idx); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult("[VERIFIED] Tab closed")

	case "download":
		url, _ := args["url"].(string)
		if url == "" {
			return ErrorResult("url is required for download")
		}
		msg, err := t.controller.Download(url, filepath.Join(t.workspace, "downloads"))
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(fmt.Sprintf("[VERIFIED] Downloaded %s", msg))

	case "upload":
		path, _ := args["path"].(string)
		if path == "" {
			return ErrorResult("path is required for upload")
		}
		target, _ := args["target"].(string)
		msg, err := t.controller.Upload(target, path)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(msg)

	case "trace":
		return SilentResult(t.controller.Trace())

	case "cookies":
		out, err := t.controller.Cookies()
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(out)

	case "storage":
		out, err := t.controller.Storage()
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(out)

	case "console":
		return SilentResult(t.controller.ConsoleLog())

	case "errors":
		return SilentResult(t.controller.PageErrors())

	case "get_text":
		out, err := t.controller.GetText(4000)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(out)

	case "wait":
		secs := 1.0
		if f, ok := args["seconds"].(float64); ok {
			secs = f
		}
		t.controller.Wait(secs)
		return SilentResult(fmt.Sprintf("Waited %.1fs", secs))

	case "press":
		key, _ := args["text"].(string)
		if key == "" {
			return ErrorResult("text (the key name) is required for press")
		}
		if err := t.controller.Press(key); err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(fmt.Sprintf("[VERIFIED] Pressed %s", key))

	case "scroll":
		dy := 600.0
		if f, ok := args["amount"].(float64); ok {
			dy = f
		}
		if err := t.controller.Scroll(dy); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(fmt.Sprintf("Scrolled %.0fpx", dy))

	case "hover":
		target, _ := args["target"].(string)
		if target == "" {
			return ErrorResult("target is required for hover")
		}
		if err := t.controller.Hover(target); err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(fmt.Sprintf("[VERIFIED] Hovering %q", target))

	case "resize":
		w, _ := args["width"].(float64)
		h, _ := args["height"].(float64)
		if err := t.controller.Resize(int(w), int(h)); err != nil {
			return ErrorResult(fmt.Sprintf("[ERROR] %v", err))
		}
		return SilentResult(fmt.Sprintf("[VERIFIED] Viewport %dx%d", int(w), int(h)))

	case "act":
		kind, _ := args["kind"].(string)
		ref, _ := args["target"].(string)
		value, _ := args["text"].(string)
		msg, err := t.controller.Act(kind, ref, value)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(msg)

	case "find":
		by, _ := args["by"].(string)
		value, _ := args["text"].(string)
		nth := 0
		if f, ok := args["index"].(float64); ok {
			nth = int(f)
		}
		msg, err := t.controller.Find(by, value, nth)
		if err != nil {
			return ErrorResult(fmt.Sprintf("[FAILED] %v", err))
		}
		return SilentResult(msg)

	default:
		return ErrorResult(fmt.Sprintf("unknown action: %s", action))
	}
}
