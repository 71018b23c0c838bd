package discord

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/getsentry/sentry-go"

	"github.com/Zetic/zpt/pkg/entities"
	"github.com/Zetic/zpt/pkg/logger"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg entities.Message, selfID string) (entities.Reply, error)
}

// Client owns the gateway session. Each inbound message is dispatched on
// its own goroutine by discordgo; there is no shared mutable state here
// beyond the session, so no locking is needed.
type Client struct {
	Log     logger.Logger
	Token   string
	Prefix  string
	Handler MessageHandler

	// Status reporting only, values are never echoed back.
	ReplicateTokenSet bool
	AllowedChannelID  string
	MaxImageBytes     int64
	ArchiveDir        string

	session  *discordgo.Session
	commands map[string]func(*discordgo.MessageCreate)
}

func (c *Client) Start(ctx context.Context) error {
	if c.Prefix == "" {
		return fmt.Errorf("command prefix must not be empty")
	}

	session, err := discordgo.New("Bot " + c.Token)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c.session = session
	c.registerCommands()

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessageCreate(ctx, s, m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("opening gateway connection: %w", err)
	}

	c.Log.Info("gateway connected", "username", session.State.User.Username, "user_id", session.State.User.ID)

	return nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) handleMessageCreate(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	log := c.Log.With("message_id", m.ID, "channel_id", m.ChannelID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic handling message", "error", r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	if name, ok := c.matchCommand(m.Content); ok {
		log.Info("command received", "command", name)
		c.commands[name](m)
		return
	}

	msg := takeMessage(m.Message)

	reply, err := c.Handler.HandleMessage(ctx, msg, s.State.User.ID)
	if err != nil {
		log.Error("handling message", "error", err)
		sentry.CaptureException(err)
	}

	if err := c.applyReply(m.Message, reply); err != nil {
		log.Error("sending reply", "error", err)
	}
}

// registerCommands builds the dispatch table once at startup.
func (c *Client) registerCommands() {
	c.commands = map[string]func(*discordgo.MessageCreate){
		"help":   c.replyHelp,
		"status": c.replyStatus,
	}
}

// matchCommand reports whether content invokes a known command, i.e.
// starts with the prefix immediately followed by a registered name.
func (c *Client) matchCommand(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, c.Prefix) {
		return "", false
	}

	name, _, _ := strings.Cut(content[len(c.Prefix):], " ")
	name = strings.ToLower(name)

	_, ok := c.commands[name]

	return name, ok
}

func (c *Client) applyReply(m *discordgo.Message, reply entities.Reply) error {
	switch reply.Kind {
	case entities.ReplyKindNoop:
		return nil

	case entities.ReplyKindText:
		if reply.EditMessageID != "" {
			_, err := c.session.ChannelMessageEdit(m.ChannelID, reply.EditMessageID, reply.Text)
			return err
		}
		_, err := c.session.ChannelMessageSendReply(m.ChannelID, reply.Text, m.Reference())
		return err

	case entities.ReplyKindImage:
		file := &discordgo.File{
			Name:        reply.Filename,
			ContentType: reply.Image.MIME,
			Reader:      bytes.NewReader(reply.Image.Data),
		}

		if reply.EditMessageID != "" {
			edit := discordgo.NewMessageEdit(m.ChannelID, reply.EditMessageID)
			edit.SetContent(reply.Text)
			edit.Files = []*discordgo.File{file}
			_, err := c.session.ChannelMessageEditComplex(edit)
			return err
		}

		_, err := c.session.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
			Content:   reply.Text,
			Files:     []*discordgo.File{file},
			Reference: m.Reference(),
		})
		return err

	default:
		return fmt.Errorf("unknown reply kind: %s", reply.Kind)
	}
}

// GetMessage resolves the parent of a reply for the handler.
func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (entities.Message, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return entities.Message{}, fmt.Errorf("fetching message: %w", err)
	}

	return takeMessage(m), nil
}

// NotifyProcessing posts the placeholder the final result is edited into.
func (c *Client) NotifyProcessing(ctx context.Context, msg entities.Message) (string, error) {
	sent, err := c.session.ChannelMessageSendReply(
		msg.ChannelID,
		"Processing your image modification request...",
		&discordgo.MessageReference{ChannelID: msg.ChannelID, MessageID: msg.ID},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("sending processing notice: %w", err)
	}

	return sent.ID, nil
}

func (c *Client) replyHelp(m *discordgo.MessageCreate) {
	help := "**Image Modification Bot**\n" +
		"1. Find a message with an image\n" +
		"2. Reply to that message and mention me\n" +
		"3. Describe how you want the image modified\n\n" +
		"Example: `@Bot make the letters 3D and floating in space`\n\n" +
		"Commands: `" + c.Prefix + "help`, `" + c.Prefix + "status`"

	c.sendText(m, help)
}

func (c *Client) replyStatus(m *discordgo.MessageCreate) {
	c.sendText(m, c.statusText())
}

// statusText reports whether tokens are configured, never their values.
func (c *Client) statusText() string {
	restriction := "none"
	if c.AllowedChannelID != "" {
		restriction = c.AllowedChannelID
	}

	archive := "disabled"
	if c.ArchiveDir != "" {
		archive = c.ArchiveDir
	}

	return fmt.Sprintf(
		"**Bot Status**\n"+
			"- discord token: %s\n"+
			"- replicate token: %s\n"+
			"- prefix: %s\n"+
			"- max image size: %d MB\n"+
			"- channel restriction: %s\n"+
			"- image archive: %s",
		configured(c.Token != ""),
		configured(c.ReplicateTokenSet),
		c.Prefix,
		c.MaxImageBytes/(1024*1024),
		restriction,
		archive,
	)
}

func (c *Client) sendText(m *discordgo.MessageCreate, text string) {
	if _, err := c.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		c.Log.Error("sending message", "channel_id", m.ChannelID, "error", err)
	}
}

func configured(set bool) string {
	if set {
		return "configured"
	}
	return "missing"
}

func takeMessage(m *discordgo.Message) entities.Message {
	msg := entities.Message{
		Sender:    takeUser(m.Author),
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Text:      m.Content,
	}

	for _, u := range m.Mentions {
		msg.Mentions = append(msg.Mentions, u.ID)
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		msg.Reference = &entities.MessageRef{
			ChannelID: ref.ChannelID,
			MessageID: ref.MessageID,
		}
	}

	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, entities.Attachment{
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        int64(att.Size),
			Filename:    att.Filename,
		})
	}

	return msg
}

func takeUser(u *discordgo.User) entities.User {
	if u == nil {
		return entities.User{}
	}

	return entities.User{
		ID:   u.ID,
		Name: u.Username,
	}
}
