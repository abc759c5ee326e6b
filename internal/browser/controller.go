package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Controller drives pages in the managed browser through go-rod. It keeps
// the rod connection and the active page, plus per-page console/error
// buffers the agent can inspect.
type Controller struct {
	manager *Manager

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	refs    *RefMap // snapshot refs for the active page

	consoleMu sync.Mutex
	console   []string
	pageErrs  []string
	netTrace  []string
}

func NewController(manager *Manager) *Controller {
	return &Controller{manager: manager}
}

// Connect starts the browser if needed and attaches rod to it.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return nil
	}
	if err := c.manager.Start(); err != nil {
		return err
	}

	u, err := launcher.ResolveURL(c.manager.DebugURL())
	if err != nil {
		return fmt.Errorf("resolve debugger url: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	c.browser = b
	return nil
}

// Status describes the browser's current state: whether it is running,
// how many tabs are open, and what the active tab shows.
func (c *Controller) Status() string {
	if !c.manager.IsRunning() {
		return "Browser is not running."
	}
	if err := c.Connect(); err != nil {
		return fmt.Sprintf("Browser is running but unreachable: %v", err)
	}

	c.mu.Lock()
	browser := c.browser
	page := c.page
	c.mu.Unlock()

	pages, err := browser.Pages()
	if err != nil {
		return fmt.Sprintf("Browser is running but unreachable: %v", err)
	}
	out := fmt.Sprintf("Browser running with %d tab(s).", len(pages))
	if page != nil {
		if info, err := page.Info(); err == nil {
			out += fmt.Sprintf(" Active: %s (%s)", info.Title, info.URL)
		}
	}
	return out
}

// CloseTab closes the tab at index, or the active tab when index is
// negative. The controller adopts another tab on the next action.
func (c *Controller) CloseTab(index int) error {
	if err := c.Connect(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pages, err := c.browser.Pages()
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("no open tabs")
	}

	var target *rod.Page
	if index < 0 {
		target = c.page
		if target == nil {
			target = pages[len(pages)-1]
		}
	} else {
		if index >= len(pages) {
			return fmt.Errorf("tab index %d out of range (have %d)", index, len(pages))
		}
		target = pages[index]
	}

	if err := target.Close(); err != nil {
		return fmt.Errorf("close tab: %w", err)
	}
	if c.page != nil && c.page.TargetID == target.TargetID {
		c.page = nil
		c.refs = nil
	}
	return nil
}

// Close detaches from the browser and shuts it down.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.browser != nil {
		c.browser.Close()
		c.browser = nil
		c.page = nil
		c.refs = nil
	}
	c.mu.Unlock()

	c.manager.Stop()
}

// ActivePage returns the current page, adopting the browser's most recent
// tab when none is tracked yet.
func (c *Controller) ActivePage() (*rod.Page, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != nil {
		return c.page, nil
	}

	pages, err := c.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		c.page = pages[len(pages)-1]
	} else {
		page, err := c.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		c.page = page
	}
	c.hookPageEvents(c.page)
	return c.page, nil
}

// Navigate opens a URL in the active page and waits for load.
func (c *Controller) Navigate(url string) error {
	page, err := c.ActivePage()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "about:") {
		url = "https://" + url
	}

	c.clearConsole()
	c.invalidateRefs()

	if err := page.Timeout(30 * time.Second).Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	page.Timeout(20 * time.Second).WaitLoad()
	waitSettle(page)
	return nil
}

// NewTab opens a URL in a fresh tab and makes it active.
func (c *Controller) NewTab(url string) error {
	if err := c.Connect(); err != nil {
		return err
	}
	if url == "" {
		url = "about:blank"
	}

	c.mu.Lock()
	page, err := c.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("open tab: %w", err)
	}
	c.page = page
	c.refs = nil
	c.hookPageEvents(page)
	c.mu.Unlock()

	page.Timeout(20 * time.Second).WaitLoad()
	waitSettle(page)
	return nil
}

// Tabs lists open tabs as "index: title (url)" lines, marking the active one.
func (c *Controller) Tabs() (string, error) {
	if err := c.Connect(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pages, err := c.browser.Pages()
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "No open tabs.", nil
	}

	var b strings.Builder
	for i, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		marker := " "
		if c.page != nil && p.TargetID == c.page.TargetID {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %d: %s (%s)\n", marker, i, info.Title, info.URL)
	}
	return b.String(), nil
}

// SwitchTab makes the tab at the given index active.
func (c *Controller) SwitchTab(index int) error {
	if err := c.Connect(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pages, err := c.browser.Pages()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(pages) {
		return fmt.Errorf("tab index %d out of range (have %d)", index, len(pages))
	}
	c.page = pages[index]
	c.refs = nil
	c.hookPageEvents(c.page)

	_, err = c.page.Activate()
	return err
}

// PageInfo returns the active page's title and URL.
func (c *Controller) PageInfo() (title, url string, err error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", "", err
	}
	return info.Title, info.URL, nil
}

// Evaluate runs JavaScript in the active page and returns its JSON result.
func (c *Controller) Evaluate(js string) (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	js = strings.TrimSpace(js)
	// rod wants a function literal; wrap bare expressions.
	if !strings.HasPrefix(js, "()") && !strings.HasPrefix(js, "function") && !strings.HasPrefix(js, "async") {
		js = "() => { return " + js + " }"
	}

	res, err := page.Timeout(15 * time.Second).Eval(js)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return res.Value.String(), nil
}

// Screenshot captures the viewport to a PNG under dir and returns its path.
func (c *Controller) Screenshot(dir string) (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	data, err := page.Timeout(15 * time.Second).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("screenshot_%d.png", time.Now().Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Cookies returns cookies visible to the active page.
func (c *Controller) Cookies() (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}
	cookies, err := page.Cookies(nil)
	if err != nil {
		return "", err
	}
	if len(cookies) == 0 {
		return "No cookies.", nil
	}

	var b strings.Builder
	for _, ck := range cookies {
		fmt.Fprintf(&b, "%s=%s (domain=%s path=%s)\n", ck.Name, ck.Value, ck.Domain, ck.Path)
	}
	return b.String(), nil
}

// Storage dumps localStorage of the active page as JSON.
func (c *Controller) Storage() (string, error) {
	return c.Evaluate(`() => {
		const out = {};
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			out[k] = localStorage.getItem(k);
		}
		return out;
	}`)
}

// Back navigates the active page back in history.
func (c *Controller) Back() error {
	page, err := c.ActivePage()
	if err != nil {
		return err
	}
	c.invalidateRefs()
	if err := page.NavigateBack(); err != nil {
		return err
	}
	page.Timeout(15 * time.Second).WaitLoad()
	waitSettle(page)
	return nil
}

// ConsoleLog returns buffered console output from the active page.
func (c *Controller) ConsoleLog() string {
	c.consoleMu.Lock()
	defer c.consoleMu.Unlock()
	if len(c.console) == 0 {
		return "No console output."
	}
	return strings.Join(c.console, "\n")
}

// PageErrors returns buffered uncaught exceptions from the active page.
func (c *Controller) PageErrors() string {
	c.consoleMu.Lock()
	defer c.consoleMu.Unlock()
	if len(c.pageErrs) == 0 {
		return "No page errors."
	}
	return strings.Join(c.pageErrs, "\n")
}

// Trace returns the buffered network log of the active page: one line per
// response since the last navigation.
func (c *Controller) Trace() string {
	c.consoleMu.Lock()
	defer c.consoleMu.Unlock()
	if len(c.netTrace) == 0 {
		return "No network activity recorded."
	}
	return strings.Join(c.netTrace, "\n")
}

func (c *Controller) clearConsole() {
	c.consoleMu.Lock()
	c.console = nil
	c.pageErrs = nil
	c.netTrace = nil
	c.consoleMu.Unlock()
}

func (c *Controller) invalidateRefs() {
	c.mu.Lock()
	c.refs = nil
	c.mu.Unlock()
}

// hookPageEvents buffers console messages and uncaught exceptions.
// Caller holds c.mu.
func (c *Controller) hookPageEvents(page *rod.Page) {
	go page.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			var parts []string
			for _, arg := range e.Args {
				parts = append(parts, arg.Value.String())
			}
			c.appendConsole(fmt.Sprintf("[%s] %s", e.Type, strings.Join(parts, " ")))
		},
		func(e *proto.RuntimeExceptionThrown) {
			c.consoleMu.Lock()
			c.pageErrs = append(c.pageErrs, e.ExceptionDetails.Text)
			if len(c.pageErrs) > 100 {
				c.pageErrs = c.pageErrs[len(c.pageErrs)-100:]
			}
			c.consoleMu.Unlock()
		},
		func(e *proto.NetworkResponseReceived) {
			c.consoleMu.Lock()
			c.netTrace = append(c.netTrace,
				fmt.Sprintf("%d %s %s", e.Response.Status, e.Type, e.Response.URL))
			if len(c.netTrace) > 300 {
				c.netTrace = c.netTrace[len(c.netTrace)-300:]
			}
			c.consoleMu.Unlock()
		},
	)()
}

func (c *Controller) appendConsole(line string) {
	c.consoleMu.Lock()
	c.console = append(c.console, line)
	if len(c.console) > 200 {
		c.console = c.console[len(c.console)-200:]
	}
	c.consoleMu.Unlock()
}

// waitSettle gives SPA pages a moment to render after load. WaitLoad alone
// fires before client-side routers paint.
func waitSettle(page *rod.Page) {
	page.Timeout(5 * time.Second).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)()
	time.Sleep(300 * time.Millisecond)
}
