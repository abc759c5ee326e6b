package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// GetText returns the visible text of the active page.
func (c *Controller) GetText(maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = 4000
	}
	return c.pageTextPreview(maxChars)
}

// Wait pauses for up to 30 seconds, for pages that load content late.
func (c *Controller) Wait(seconds float64) {
	if seconds <= 0 {
		seconds = 1
	}
	if seconds > 30 {
		seconds = 30
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}

var namedKeys = map[string]input.Key{
	"enter":     input.Enter,
	"tab":       input.Tab,
	"escape":    input.Escape,
	"backspace": input.Backspace,
	"delete":    input.Delete,
	"arrowup":   input.ArrowUp,
	"arrowdown": input.ArrowDown,
	"arrowleft": input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"pageup":    input.PageUp,
	"pagedown":  input.PageDown,
	"home":      input.Home,
	"end":       input.End,
}

// Press sends a named key to the focused element.
func (c *Controller) Press(key string) error {
	page, err := c.ActivePage()
	if err != nil {
		return err
	}

	k, ok := namedKeys[strings.ToLower(strings.ReplaceAll(key, "_", ""))]
	if !ok {
		runes := []rune(key)
		if len(runes) != 1 {
			return fmt.Errorf("unknown key: %s", key)
		}
		k = input.Key(runes[0])
	}
	return page.Keyboard.Press(k)
}

// Scroll moves the page vertically by dy pixels (negative scrolls up).
func (c *Controller) Scroll(dy float64) error {
	page, err := c.ActivePage()
	if err != nil {
		return err
	}
	if dy == 0 {
		dy = 600
	}
	return page.Mouse.Scroll(0, dy, 1)
}

// Hover moves the mouse over a snapshot ref or text-matched element.
func (c *Controller) Hover(target string) error {
	page, err := c.ActivePage()
	if err != nil {
		return err
	}

	if entry, ok := c.currentRefs().Get(target); ok && entry.BackendID != 0 {
		if el, err := elementFromBackendID(page, entry.BackendID); err == nil {
			return el.Hover()
		}
	}
	pattern := "/" + regexp.QuoteMeta(truncateText(target, 40)) + "/i"
	el, err := page.Timeout(5 * time.Second).ElementR("*", pattern)
	if err != nil {
		return fmt.Errorf("no element found for %q", target)
	}
	return el.Hover()
}

// Resize sets the viewport dimensions.
func (c *Controller) Resize(width, height int) error {
	page, err := c.ActivePage()
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

// Act performs one snapshot-ref action: {kind, ref, value}. A thin dispatch
// over the primary verbs so the model can batch simple interactions.
func (c *Controller) Act(kind, ref, value string) (string, error) {
	switch kind {
	case "click":
		return c.Click(ref)
	case "type":
		return c.Type(ref, value, false)
	case "submit":
		return c.Type(ref, value, true)
	case "press":
		if err := c.Press(value); err != nil {
			return "", err
		}
		return fmt.Sprintf("[VERIFIED] Pressed %s", value), nil
	case "hover":
		if err := c.Hover(ref); err != nil {
			return "", err
		}
		return fmt.Sprintf("[VERIFIED] Hovering %q", ref), nil
	default:
		return "", fmt.Errorf("unknown act kind: %s", kind)
	}
}

// Find locates a snapshot entry by role, text, or position and reports its
// ref so a follow-up action can use it.
func (c *Controller) Find(by, value string, nth int) (string, error) {
	refs := c.currentRefs()
	if refs.Len() == 0 {
		if _, err := c.Snapshot(); err != nil {
			return "", err
		}
		refs = c.currentRefs()
	}

	matchIdx := 0
	for _, ref := range refs.order {
		e := refs.entries[ref]
		var hit bool
		switch by {
		case "role":
			hit = e.Role == value
		case "text", "label":
			hit = strings.Contains(strings.ToLower(e.Name), strings.ToLower(value))
		case "first":
			hit = true
		default:
			return "", fmt.Errorf("unknown find criterion: %s", by)
		}
		if !hit {
			continue
		}
		if matchIdx == nth {
			return fmt.Sprintf("Found %s %q [%s]", e.Role, e.Name, e.Ref), nil
		}
		matchIdx++
	}
	return "", fmt.Errorf("no match for %s=%q (nth=%d)", by, value, nth)
}
