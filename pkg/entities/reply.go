package entities

// Reply is what the handler wants sent back to the channel.
type Reply struct {
	Kind     ReplyKind
	Text     string
	Image    *ImageAsset
	Filename string

	// EditMessageID, when set, tells the sender to edit that message
	// in place instead of posting a new one.
	EditMessageID string
}

type ReplyKind string

const (
	// ReplyKindNoop means the message is silently ignored
	ReplyKindNoop ReplyKind = "noop"

	// ReplyKindText sends a plain text reply
	ReplyKindText ReplyKind = "text"

	// ReplyKindImage sends an image attachment with optional caption text
	ReplyKindImage ReplyKind = "image"
)
