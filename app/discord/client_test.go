package discord

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func newTestClient() *Client {
	c := &Client{
		Prefix:            "!",
		Token:             "discord-secret",
		ReplicateTokenSet: true,
		MaxImageBytes:     25 << 20,
		AllowedChannelID:  "ch-42",
		ArchiveDir:        "./images",
	}
	c.registerCommands()

	return c
}

func TestMatchCommand(t *testing.T) {
	c := newTestClient()

	cases := []struct {
		content string
		name    string
		ok      bool
	}{
		{"!help", "help", true},
		{"!status", "status", true},
		{"!STATUS", "status", true},
		{"  !help  ", "help", true},
		{"!help me please", "help", true},
		{"help", "", false},
		{"!unknown", "unknown", false},
		{"hello !help", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		name, ok := c.matchCommand(tc.content)
		if ok != tc.ok {
			t.Errorf("matchCommand(%q) ok = %v, want %v", tc.content, ok, tc.ok)
			continue
		}
		if ok && name != tc.name {
			t.Errorf("matchCommand(%q) = %q, want %q", tc.content, name, tc.name)
		}
	}
}

func TestStatusText_NeverLeaksTokens(t *testing.T) {
	c := newTestClient()

	status := c.statusText()
	if strings.Contains(status, "discord-secret") {
		t.Fatal("status must not contain token values")
	}
	if !strings.Contains(status, "discord token: configured") {
		t.Errorf("status should report the discord token as configured:\n%s", status)
	}
	if !strings.Contains(status, "prefix: !") {
		t.Errorf("status should report the prefix:\n%s", status)
	}
	if !strings.Contains(status, "max image size: 25 MB") {
		t.Errorf("status should report the size limit:\n%s", status)
	}
	if !strings.Contains(status, "channel restriction: ch-42") {
		t.Errorf("status should report the channel restriction:\n%s", status)
	}
}

func TestStatusText_Defaults(t *testing.T) {
	c := &Client{Prefix: "!", MaxImageBytes: 25 << 20}
	c.registerCommands()

	status := c.statusText()
	if !strings.Contains(status, "channel restriction: none") {
		t.Errorf("unexpected restriction line:\n%s", status)
	}
	if !strings.Contains(status, "image archive: disabled") {
		t.Errorf("unexpected archive line:\n%s", status)
	}
	if !strings.Contains(status, "discord token: missing") {
		t.Errorf("unexpected token line:\n%s", status)
	}
}

func TestTakeMessage(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m-1",
		ChannelID: "ch-1",
		Content:   "<@900> make it night",
		Author:    &discordgo.User{ID: "5", Username: "alice"},
		Mentions:  []*discordgo.User{{ID: "900"}},
		MessageReference: &discordgo.MessageReference{
			ChannelID: "ch-1",
			MessageID: "parent-1",
		},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/cat.png", ContentType: "image/png", Size: 2048, Filename: "cat.png"},
		},
	}

	msg := takeMessage(m)

	if msg.ID != "m-1" || msg.ChannelID != "ch-1" {
		t.Fatalf("unexpected ids: %q %q", msg.ID, msg.ChannelID)
	}
	if msg.Sender.ID != "5" || msg.Sender.Name != "alice" {
		t.Errorf("unexpected sender: %+v", msg.Sender)
	}
	if !msg.MentionsUser("900") {
		t.Error("mention not carried over")
	}
	if !msg.IsReply() || msg.Reference.MessageID != "parent-1" {
		t.Errorf("reference not carried over: %+v", msg.Reference)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.ContentType != "image/png" || att.Size != 2048 || att.Filename != "cat.png" {
		t.Errorf("unexpected attachment: %+v", att)
	}
}

func TestTakeMessage_NoReference(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m-2",
		ChannelID: "ch-1",
		Author:    &discordgo.User{ID: "5"},
	}

	msg := takeMessage(m)
	if msg.IsReply() {
		t.Fatal("message without reference must not be a reply")
	}
}
