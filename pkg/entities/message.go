package entities

import "strings"

type User struct {
	ID   string
	Name string
}

// MessageRef points at the parent of a reply.
type MessageRef struct {
	ChannelID string
	MessageID string
}

type Attachment struct {
	URL         string
	ContentType string
	Size        int64
	Filename    string
}

type Message struct {
	Sender      User
	ID          string
	ChannelID   string
	Text        string
	Mentions    []string // user ids mentioned in the text
	Reference   *MessageRef
	Attachments []Attachment
}

func (m *Message) IsReply() bool {
	return m.Reference != nil && m.Reference.MessageID != ""
}

func (m *Message) MentionsUser(userID string) bool {
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// Prompt returns the message text with the given user's mention tokens
// removed and surrounding whitespace trimmed. Discord renders a mention
// as <@id>, or <@!id> when the member has a nickname.
func (m *Message) Prompt(userID string) string {
	text := m.Text
	text = strings.ReplaceAll(text, "<@"+userID+">", "")
	text = strings.ReplaceAll(text, "<@!"+userID+">", "")
	return strings.TrimSpace(text)
}

// QualifiesAsImage reports whether the attachment is a supported image
// within the size limit.
func (a *Attachment) QualifiesAsImage(maxBytes int64) bool {
	return IsSupportedImageType(a.ContentType) && a.Size <= maxBytes
}
