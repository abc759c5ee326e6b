package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// interactiveRoles are the accessibility roles surfaced as actionable
// elements in snapshots.
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "checkbox": true,
	"radio": true, "combobox": true, "listbox": true, "menuitem": true,
	"option": true, "searchbox": true, "slider": true, "spinbutton": true,
	"switch": true, "tab": true, "treeitem": true,
}

// RefEntry describes one actionable element found by a snapshot. Refs are
// handed to the LLM; actions resolve them back to live elements.
type RefEntry struct {
	Ref  string
	Role string
	Name string
	Nth  int // occurrence index among elements with the same role+name

	// AX-sourced entries carry a backend node id; DOM-fallback entries
	// carry a selector plus index instead.
	BackendID proto.DOMBackendNodeID
	Selector  string
	SelNth    int
	Tag       string
	Href      string
}

// RefMap is the ref table for one snapshot of one page. Navigation
// invalidates it.
type RefMap struct {
	entries map[string]*RefEntry
	order   []string
}

func newRefMap() *RefMap {
	return &RefMap{entries: make(map[string]*RefEntry)}
}

func (m *RefMap) add(e *RefEntry) string {
	e.Ref = fmt.Sprintf("e%d", len(m.order)+1)
	m.entries[e.Ref] = e
	m.order = append(m.order, e.Ref)
	return e.Ref
}

// Get looks up an entry by its ref id.
func (m *RefMap) Get(ref string) (*RefEntry, bool) {
	if m == nil {
		return nil, false
	}
	e, ok := m.entries[ref]
	return e, ok
}

// Len returns the number of entries.
func (m *RefMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// FindByName returns the first entry whose name contains text (case
// insensitive), preferring exact matches.
func (m *RefMap) FindByName(text string) (*RefEntry, bool) {
	if m == nil {
		return nil, false
	}
	lower := strings.ToLower(text)
	var partial *RefEntry
	for _, ref := range m.order {
		e := m.entries[ref]
		name := strings.ToLower(e.Name)
		if name == lower {
			return e, true
		}
		if partial == nil && strings.Contains(name, lower) {
			partial = e
		}
	}
	return partial, partial != nil
}

// Snapshot captures the page's actionable elements. The accessibility tree
// is the primary source; when it yields fewer than ten links and buttons
// (canvas-heavy or div-soup sites) a DOM walk fills the gap.
func (c *Controller) Snapshot() (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	refs := newRefMap()
	var lines []string

	title, url, _ := c.PageInfo()
	lines = append(lines, fmt.Sprintf("Page: %s", title), fmt.Sprintf("URL: %s", url), "")

	linkButtonCount := 0
	seen := make(map[string]int) // role+name → occurrences, for nth

	tree, err := proto.AccessibilityGetFullAXTree{}.Call(page)
	if err == nil {
		for _, node := range tree.Nodes {
			if node.Ignored || node.Role == nil {
				continue
			}
			role := node.Role.Value.Str()
			if !interactiveRoles[role] {
				continue
			}
			name := ""
			if node.Name != nil {
				name = strings.TrimSpace(node.Name.Value.Str())
			}
			if name == "" {
				continue
			}

			key := role + "\x00" + name
			nth := seen[key]
			seen[key]++

			entry := &RefEntry{
				Role:      role,
				Name:      name,
				Nth:       nth,
				BackendID: node.BackendDOMNodeID,
			}
			ref := refs.add(entry)
			lines = append(lines, fmt.Sprintf("- %s %q [%s]", role, name, ref))

			if role == "link" || role == "button" {
				linkButtonCount++
			}
		}
	}

	if linkButtonCount < 10 {
		domLines := c.domFallback(page, refs)
		if len(domLines) > 0 {
			lines = append(lines, "", "DOM elements:")
			lines = append(lines, domLines...)
		}
	}

	c.mu.Lock()
	c.refs = refs
	c.mu.Unlock()

	return strings.Join(lines, "\n"), nil
}

// currentRefs returns the ref table from the last snapshot.
func (c *Controller) currentRefs() *RefMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// domFallbackJS walks the DOM for clickable elements the AX tree missed.
// Curated selectors cover common list-card patterns on sites that render
// everything as divs; results are deduped by tag+text prefix and capped.
const domFallbackJS = `() => {
	const selectors = [
		"a[href]", "button", "input", "select", "textarea",
		"[role=button]", "[role=link]", "[onclick]",
		"section.note-item", "div[class*=card]", "li[class*=item]",
	];
	const out = [];
	const seen = new Set();
	for (const sel of selectors) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		let idx = 0;
		for (const el of nodes) {
			const selNth = idx++;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 && rect.height === 0) continue;
			const text = (el.innerText || el.value || el.placeholder || el.getAttribute("aria-label") || "").trim().slice(0, 80);
			if (!text && sel !== "input") continue;
			const tag = el.tagName.toLowerCase();
			const key = tag + "|" + text.slice(0, 30);
			if (seen.has(key)) continue;
			seen.add(key);
			out.push({
				tag: tag,
				text: text,
				href: el.getAttribute("href") || "",
				selector: sel,
				nth: selNth,
			});
			if (out.length >= 50) return out;
		}
	}
	return out;
}`

func (c *Controller) domFallback(page *rod.Page, refs *RefMap) []string {
	res, err := page.Timeout(10 * time.Second).Eval(domFallbackJS)
	if err != nil {
		return nil
	}

	var lines []string
	for _, item := range res.Value.Arr() {
		entry := &RefEntry{
			Role:     "element",
			Name:     item.Get("text").Str(),
			Tag:      item.Get("tag").Str(),
			Href:     item.Get("href").Str(),
			Selector: item.Get("selector").Str(),
			SelNth:   item.Get("nth").Int(),
		}
		ref := refs.add(entry)
		line := fmt.Sprintf("- <%s> %q [%s]", entry.Tag, entry.Name, ref)
		if entry.Href != "" {
			line += fmt.Sprintf(" href=%s", entry.Href)
		}
		lines = append(lines, line)
	}
	return lines
}
