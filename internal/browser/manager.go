package browser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gorilla/websocket"
)

// Manager owns the Chrome process behind the CDP endpoint. It attaches to
// an already-running browser when one answers on the debug port, otherwise
// it spawns its own and remembers the pid so Stop only kills what it started.
type Manager struct {
	executable  string
	debugPort   int
	userDataDir string
	headless    bool

	cmd *exec.Cmd // non-nil only when we spawned the process
}

func NewManager(executable string, debugPort int, userDataDir string, headless bool) *Manager {
	if executable == "" {
		executable = FindExecutable()
	}
	if userDataDir == "" {
		home, _ := os.UserHomeDir()
		userDataDir = filepath.Join(home, ".nanocat", "browser")
	}
	return &Manager{
		executable:  executable,
		debugPort:   debugPort,
		userDataDir: userDataDir,
		headless:    headless,
	}
}

// FindExecutable locates a Chrome or Chromium binary for the current OS.
func FindExecutable() string {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		}
	default:
		for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "microsoft-edge"} {
			if path, err := exec.LookPath(name); err == nil {
				return path
			}
		}
		return ""
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// DebugURL is the HTTP endpoint of the browser's CDP listener.
func (m *Manager) DebugURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", m.debugPort)
}

// wsDebuggerURL probes /json/version and returns the browser-level
// websocket URL, or "" when nothing is listening.
func (m *Manager) wsDebuggerURL() string {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(m.DebugURL() + "/json/version")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ""
	}
	return info.WebSocketDebuggerURL
}

// IsRunning reports whether a browser answers on the debug port.
func (m *Manager) IsRunning() bool {
	return m.wsDebuggerURL() != ""
}

// Start ensures a browser is listening on the debug port, spawning one when
// needed. Returns once the CDP endpoint is reachable.
func (m *Manager) Start() error {
	if m.IsRunning() {
		slog.Debug("attaching to running browser", "port", m.debugPort)
		return nil
	}

	if m.executable == "" {
		return fmt.Errorf("no Chrome/Chromium executable found; set tools.browser.executable")
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", m.debugPort),
		"--user-data-dir=" + m.userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-timer-throttling",
	}
	if m.headless {
		args = append(args, "--headless=new")
	}

	cmd := exec.Command(m.executable, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	m.cmd = cmd
	go cmd.Wait()

	slog.Info("browser launched", "executable", m.executable, "port", m.debugPort, "headless", m.headless)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if m.IsRunning() {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("browser did not open debug port %d within 10s", m.debugPort)
}

// Stop shuts the browser down. Graceful path is a one-shot CDP
// Browser.close over the debugger websocket; the process kill is a
// fallback for browsers we spawned that ignore it.
func (m *Manager) Stop() {
	if wsURL := m.wsDebuggerURL(); wsURL != "" {
		if err := closeBrowserOverCDP(wsURL); err != nil {
			slog.Debug("graceful browser close failed", "error", err)
		} else {
			// Give the process a moment to exit before the kill fallback.
			time.Sleep(500 * time.Millisecond)
		}
	}

	if m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			slog.Debug("browser process killed", "pid", m.cmd.Process.Pid)
		}
		m.cmd = nil
	}
}

// closeBrowserOverCDP dials the browser-level debugger socket and issues
// Browser.close. A full CDP client is overkill for one fire-and-forget call.
func closeBrowserOverCDP(wsURL string) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	msg := map[string]interface{}{"id": 1, "method": "Browser.close"}
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.ReadMessage() // ack or close, either is fine
	return nil
}
