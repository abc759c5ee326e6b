package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Click resolves a target (a snapshot ref like "e12" or visible text) and
// clicks it. Resolution walks a ladder of strategies from most precise to
// most desperate; the returned message records which strategy worked and
// whether the page actually changed.
func (c *Controller) Click(target string) (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	_, beforeURL, _ := c.PageInfo()

	entry, _ := c.currentRefs().Get(target)
	if entry == nil {
		// Not a ref: try to match snapshot entries by name.
		if byName, ok := c.currentRefs().FindByName(target); ok {
			entry = byName
		}
	}

	strategy, err := c.clickLadder(page, entry, target)
	if err != nil {
		return "", fmt.Errorf("click %q: %w", target, err)
	}

	waitSettle(page)
	c.invalidateRefs()

	afterTitle, afterURL, _ := c.PageInfo()
	if afterURL != beforeURL {
		return fmt.Sprintf("[VERIFIED] Clicked %q via %s; now at %s (%s)", target, strategy, afterURL, afterTitle), nil
	}
	return fmt.Sprintf("[VERIFIED] Clicked %q via %s; page URL unchanged (%s)", target, strategy, afterURL), nil
}

// clickLadder tries each resolution strategy in turn and performs the click.
// Returns the name of the strategy that succeeded.
func (c *Controller) clickLadder(page *rod.Page, entry *RefEntry, target string) (string, error) {
	// 1. href navigation: links are more reliably followed than clicked.
	if entry != nil && entry.Href != "" && !strings.HasPrefix(entry.Href, "javascript:") && entry.Href != "#" {
		href := entry.Href
		if strings.HasPrefix(href, "/") {
			_, cur, _ := c.PageInfo()
			href = resolveRelativeURL(cur, href)
		}
		if err := c.Navigate(href); err == nil {
			return "href", nil
		}
	}

	// 2. Exact backend node from the accessibility snapshot.
	if entry != nil && entry.BackendID != 0 {
		if el, err := elementFromBackendID(page, entry.BackendID); err == nil {
			if err := clickWithRetry(page, el); err == nil {
				return "ax-node", nil
			}
		}
	}

	// 3. Snapshot selector + index (DOM fallback entries).
	if entry != nil && entry.Selector != "" {
		if els, err := page.Timeout(5 * time.Second).Elements(entry.Selector); err == nil && entry.SelNth < len(els) {
			if err := clickWithRetry(page, els[entry.SelNth]); err == nil {
				return "selector-nth", nil
			}
		}
	}

	text := target
	if entry != nil && entry.Name != "" {
		text = entry.Name
	}

	// 4. Card containers matched by position for list-style sites.
	if entry != nil && entry.Nth > 0 {
		for _, sel := range []string{"section.note-item", "div[class*=card]", "li[class*=item]"} {
			if els, err := page.Timeout(3 * time.Second).Elements(sel); err == nil && entry.Nth < len(els) {
				if err := clickWithRetry(page, els[entry.Nth]); err == nil {
					return "card-nth", nil
				}
			}
		}
	}

	// 5. Visible text locator.
	if text != "" {
		pattern := "/" + regexp.QuoteMeta(truncateText(text, 40)) + "/i"
		if el, err := page.Timeout(5 * time.Second).ElementR("*", pattern); err == nil {
			if err := clickWithRetry(page, el); err == nil {
				return "text", nil
			}
		}
	}

	// 6. First element of the snapshot role.
	if entry != nil && entry.Role != "" && entry.Role != "element" {
		sel := roleSelector(entry.Role)
		if el, err := page.Timeout(3 * time.Second).Element(sel); err == nil {
			if err := clickWithRetry(page, el); err == nil {
				return "role", nil
			}
		}
	}

	// 7. JS text walk: find the text node and climb to the nearest
	// clickable ancestor. Last resort for fully synthetic widgets.
	if text != "" {
		js := `(needle) => {
			const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
			needle = needle.toLowerCase();
			while (walker.nextNode()) {
				const node = walker.currentNode;
				if (!node.textContent.toLowerCase().includes(needle)) continue;
				let el = node.parentElement;
				for (let i = 0; el && i < 6; i++) {
					const style = getComputedStyle(el);
					if (el.tagName === "A" || el.tagName === "BUTTON" || el.onclick ||
						el.getAttribute("role") === "button" || style.cursor === "pointer") {
						el.click();
						return true;
					}
					el = el.parentElement;
				}
			}
			return false;
		}`
		if res, err := page.Timeout(5*time.Second).Eval(js, truncateText(text, 40)); err == nil && res.Value.Bool() {
			return "js-ancestor", nil
		}
	}

	return "", fmt.Errorf("no element found for %q", target)
}

// Type fills an input field. Target resolution: snapshot ref, then role
// (textbox/searchbox), then label text, then placeholder.
func (c *Controller) Type(target, text string, submit bool) (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	el, strategy, err := c.resolveInput(page, target)
	if err != nil {
		return "", fmt.Errorf("type into %q: %w", target, err)
	}

	el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		el.SelectAllText()
	}
	if err := el.Input(text); err != nil {
		return "", fmt.Errorf("input failed: %w", err)
	}
	if submit {
		if err := el.Type(input.Enter); err != nil {
			return "", fmt.Errorf("submit failed: %w", err)
		}
		waitSettle(page)
		c.invalidateRefs()
	}
	return fmt.Sprintf("[VERIFIED] Typed into %q via %s", target, strategy), nil
}

func (c *Controller) resolveInput(page *rod.Page, target string) (*rod.Element, string, error) {
	if entry, ok := c.currentRefs().Get(target); ok && entry.BackendID != 0 {
		if el, err := elementFromBackendID(page, entry.BackendID); err == nil {
			return el, "ax-node", nil
		}
	}

	// Role: generic text inputs.
	for _, sel := range []string{
		`input[type=search]`, `input[type=text]`, `input:not([type])`, `textarea`, `[contenteditable=true]`,
	} {
		if target == "" {
			if el, err := page.Timeout(2 * time.Second).Element(sel); err == nil {
				return el, "role", nil
			}
		}
	}

	if target != "" {
		pattern := "/" + regexp.QuoteMeta(truncateText(target, 40)) + "/i"

		// Label text resolves to its control.
		if label, err := page.Timeout(3 * time.Second).ElementR("label", pattern); err == nil {
			if forAttr, _ := label.Attribute("for"); forAttr != nil && *forAttr != "" {
				if el, err := page.Element("#" + *forAttr); err == nil {
					return el, "label", nil
				}
			}
			if el, err := label.Element("input, textarea, select"); err == nil {
				return el, "label", nil
			}
		}

		// Placeholder match.
		sel := fmt.Sprintf(`input[placeholder*=%q i], textarea[placeholder*=%q i]`,
			truncateText(target, 40), truncateText(target, 40))
		if el, err := page.Timeout(3 * time.Second).Element(sel); err == nil {
			return el, "placeholder", nil
		}
	}

	// Nothing matched the target: fall back to the first text input.
	if el, err := page.Timeout(2 * time.Second).Element(`input[type=search], input[type=text], input:not([type]), textarea`); err == nil {
		return el, "first-input", nil
	}
	return nil, "", fmt.Errorf("no input field found")
}

// clickWithRetry highlights and clicks an element, scrolling the page a bit
// and retrying once when the first attempt fails (sticky headers, overlays).
func clickWithRetry(page *rod.Page, el *rod.Element) error {
	attempt := func() error {
		el.ScrollIntoView()
		el.Eval(`() => { this.style.outline = "2px solid orange" }`)
		return el.Timeout(5 * time.Second).Click(proto.InputMouseButtonLeft, 1)
	}

	if err := attempt(); err == nil {
		return nil
	}
	page.Mouse.Scroll(0, 300, 1)
	time.Sleep(200 * time.Millisecond)
	return attempt()
}

// elementFromBackendID turns an accessibility backend node id into a live
// element handle.
func elementFromBackendID(page *rod.Page, id proto.DOMBackendNodeID) (*rod.Element, error) {
	res, err := proto.DOMResolveNode{BackendNodeID: id}.Call(page)
	if err != nil {
		return nil, err
	}
	return page.ElementFromObject(res.Object)
}

// roleSelector maps an accessibility role to a CSS selector.
func roleSelector(role string) string {
	switch role {
	case "button":
		return `button, [role=button], input[type=submit], input[type=button]`
	case "link":
		return `a[href], [role=link]`
	case "textbox", "searchbox":
		return `input[type=text], input[type=search], input:not([type]), textarea`
	case "checkbox":
		return `input[type=checkbox], [role=checkbox]`
	case "radio":
		return `input[type=radio], [role=radio]`
	case "combobox", "listbox":
		return `select, [role=combobox], [role=listbox]`
	case "tab":
		return `[role=tab]`
	default:
		return fmt.Sprintf(`[role=%s]`, role)
	}
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// resolveRelativeURL joins an absolute page URL with a root-relative href.
func resolveRelativeURL(pageURL, href string) string {
	idx := strings.Index(pageURL, "://")
	if idx < 0 {
		return href
	}
	rest := pageURL[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return pageURL[:idx+3+slash] + href
	}
	return pageURL + href
}
