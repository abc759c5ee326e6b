package browser

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// searchURLBuilders maps a site's host fragment to its search URL pattern.
// Building the URL directly skips fragile search-box interaction on sites
// whose pattern is stable and public.
var searchURLBuilders = []struct {
	host  string
	build func(query string) string
}{
	{"amazon.", func(q string) string { return "/s?k=" + url.QueryEscape(q) }},
	{"xiaohongshu.com", func(q string) string { return "/search_result?keyword=" + url.QueryEscape(q) }},
	{"youtube.com", func(q string) string { return "/results?search_query=" + url.QueryEscape(q) }},
	{"ebay.", func(q string) string { return "/sch/i.html?_nkw=" + url.QueryEscape(q) }},
}

// SearchOnSite searches the active page's site for a query. Known sites get
// a direct search URL; everything else goes through the search box with an
// Enter press (twice, for sites whose first Enter only focuses suggestions).
func (c *Controller) SearchOnSite(query string) (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	_, pageURL, _ := c.PageInfo()

	for _, b := range searchURLBuilders {
		if !strings.Contains(pageURL, b.host) {
			continue
		}
		target := resolveRelativeURL(pageURL, b.build(query))
		if err := c.Navigate(target); err != nil {
			return "", fmt.Errorf("search navigation: %w", err)
		}
		preview, _ := c.pageTextPreview(800)
		return fmt.Sprintf("[VERIFIED] Searched %q via URL.\n%s", query, preview), nil
	}

	// Generic path: find a search box, type, submit.
	el, strategy, err := c.resolveInput(page, "search")
	if err != nil {
		el, strategy, err = c.resolveInput(page, "")
	}
	if err != nil {
		return "", fmt.Errorf("no search box found: %w", err)
	}

	el.ScrollIntoView()
	el.Click(proto.InputMouseButtonLeft, 1)
	el.SelectAllText()
	if err := el.Input(query); err != nil {
		return "", fmt.Errorf("typing query: %w", err)
	}

	el.Type(input.Enter)
	time.Sleep(500 * time.Millisecond)
	// Some sites swallow the first Enter to show suggestions.
	el.Type(input.Enter)
	waitSettle(page)
	c.invalidateRefs()

	preview, _ := c.pageTextPreview(800)
	return fmt.Sprintf("[VERIFIED] Searched %q via search box (%s).\n%s", query, strategy, preview), nil
}

// pageTextPreview returns the first maxChars of the page's visible text.
func (c *Controller) pageTextPreview(maxChars int) (string, error) {
	res, err := c.Evaluate(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res)
	runes := []rune(text)
	if len(runes) > maxChars {
		text = string(runes[:maxChars]) + "..."
	}
	return text, nil
}
