package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/nanocat-ai/nanocat/internal/bus"
	"github.com/nanocat-ai/nanocat/internal/channels"
	"github.com/nanocat-ai/nanocat/internal/config"
)

const sendRetries = 3

// Channel connects to Discord through the gateway API. Outbound messages
// are chunked to the 2000-char limit, paced by a rate limiter, and any
// image markers in the text become real attachments.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	cfg       config.DiscordConfig
	botUserID string
	limiter   *rate.Limiter
}

func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowedUsers),
		session:     session,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Every(time.Second/4), 4),
	}, nil
}

func (c *Channel) Start(_ context.Context) error {
	c.session.AddHandler(c.handleMessage)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers one outbound message: markers are extracted to uploads,
// the text is chunked, and the first chunk replies to the triggering
// message when known.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	content, markerFiles := extractMediaMarkers(msg.Content)
	files := append(markerFiles, existingFiles(msg.Media)...)

	if msg.IsProgress() {
		// Intermediate output: italic, no attachments, single chunk.
		if content == "" {
			return nil
		}
		return c.sendChunk(ctx, msg.ChatID, progressText(content), "", nil)
	}

	if content == "" && len(files) == 0 {
		return nil
	}

	chunks := splitMessage(content, maxMessageLen)
	if len(chunks) == 0 && len(files) > 0 {
		chunks = []string{""}
	}

	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = msg.Metadata["message_id"]
	}

	for i, chunk := range chunks {
		ref := ""
		if i == 0 {
			ref = replyTo
		}
		var attach []string
		if i == len(chunks)-1 {
			attach = files
		}
		if err := c.sendChunk(ctx, msg.ChatID, chunk, ref, attach); err != nil {
			return err
		}
	}
	return nil
}

// progressText wraps intermediate output in italics, budgeting for the
// underscores and the truncation ellipsis so the result stays within the
// message limit.
func progressText(content string) string {
	return "_" + channels.Truncate(content, maxMessageLen-5) + "_"
}

// sendChunk sends one message, retrying on gateway rate limits.
func (c *Channel) sendChunk(ctx context.Context, channelID, content, replyTo string, files []string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	send := &discordgo.MessageSend{Content: content}
	if replyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
	}

	opened := make([]*os.File, 0, len(files))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			slog.Warn("discord attachment unreadable", "path", path, "error", err)
			continue
		}
		opened = append(opened, f)
		send.Files = append(send.Files, &discordgo.File{
			Name:   filepath.Base(path),
			Reader: f,
		})
	}

	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		_, err := c.session.ChannelMessageSendComplex(channelID, send)
		if err == nil {
			return nil
		}
		lastErr = err

		var rl *discordgo.RateLimitError
		if errors.As(err, &rl) {
			slog.Warn("discord rate limited", "retry_after", rl.RetryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rl.RetryAfter):
			}
			continue
		}
		break
	}
	return fmt.Errorf("send discord message: %w", lastErr)
}

// handleMessage forwards user messages to the agent, downloading image
// attachments so the model can see them.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}
	if !c.IsAllowed(m.Author.ID) {
		slog.Debug("discord message rejected by allowlist", "user", m.Author.ID)
		return
	}

	content := m.Content
	var media []string
	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			if path, err := downloadAttachment(att.URL, att.Filename); err == nil {
				media = append(media, path)
				continue
			}
		}
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" && len(media) == 0 {
		return
	}
	if content == "" {
		content = "[image]"
	}

	slog.Debug("discord message received",
		"sender", m.Author.ID, "channel", m.ChannelID,
		"preview", channels.Truncate(content, 50))

	// Typing indicator while the agent works.
	_ = c.session.ChannelTyping(m.ChannelID)

	c.HandleMessage(m.Author.ID, m.ChannelID, content, media, map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
	})
}

// downloadAttachment fetches an attachment into the temp dir.
func downloadAttachment(url, filename string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("attachment fetch: status %d", resp.StatusCode)
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("nanocat_%d_%s", time.Now().UnixNano(), filepath.Base(filename)))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, io.LimitReader(resp.Body, 20<<20)); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func existingFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}
