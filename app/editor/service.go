package editor

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Zetic/zpt/pkg/entities"
	"github.com/Zetic/zpt/pkg/logger"
)

// Service is the handler of new messages. A message is processed when it
// replies to another message, mentions the bot and (when an allow-list is
// configured) arrives in the allowed channel. The parent's first
// qualifying image attachment is downloaded, submitted to the edit model
// together with the reply text, and the result is returned as an image
// reply. Everything else is a silent noop or a short text reply.
type Service struct {
	// Log is a logger
	Log logger.Logger

	// MaxImageBytes bounds both the input attachment and the model output
	MaxImageBytes int64

	// AllowedChannelID restricts processing to one channel; empty allows all
	AllowedChannelID string

	// Messages resolves the parent of a reply
	Messages MessageSource

	// Progress posts the placeholder message edited with the final result
	Progress ProgressNotifier

	// Fetcher downloads the attachment bytes
	Fetcher ImageFetcher

	// Editor is the remote image-edit client
	Editor EditClient

	// Archive keeps debug copies of input and output, nil disables it
	Archive ArchiveStore
}

type MessageSource interface {
	GetMessage(ctx context.Context, channelID, messageID string) (entities.Message, error)
}

type ProgressNotifier interface {
	NotifyProcessing(ctx context.Context, msg entities.Message) (messageID string, err error)
}

type ImageFetcher interface {
	FetchImage(ctx context.Context, url string, maxBytes int64) (*entities.ImageAsset, error)
}

type EditClient interface {
	Edit(ctx context.Context, img *entities.ImageAsset, prompt string) (*entities.ImageAsset, error)
}

type ArchiveStore interface {
	SaveInput(messageID string, img *entities.ImageAsset) error
	SaveOutput(messageID string, img *entities.ImageAsset) error
}

var noop = entities.Reply{Kind: entities.ReplyKindNoop}

// HandleMessage handles a message and returns the reply to be sent.
// The returned reply has to be considered even if error is not nil: the
// error is for the operator log, the reply is for the user.
func (s *Service) HandleMessage(ctx context.Context, msg entities.Message, selfID string) (entities.Reply, error) {
	if !msg.IsReply() {
		return noop, nil
	}

	if !msg.MentionsUser(selfID) {
		return noop, nil
	}

	if s.AllowedChannelID != "" && msg.ChannelID != s.AllowedChannelID {
		return noop, nil
	}

	log := s.Log.With("message_id", msg.ID, "channel_id", msg.ChannelID)

	parentChannelID := msg.Reference.ChannelID
	if parentChannelID == "" {
		parentChannelID = msg.ChannelID
	}

	parent, err := s.Messages.GetMessage(ctx, parentChannelID, msg.Reference.MessageID)
	if err != nil {
		return entities.Reply{
			Kind: entities.ReplyKindText,
			Text: "Could not find the message you replied to.",
		}, fmt.Errorf("fetching parent message: %w", err)
	}

	att, ok := firstQualifyingImage(parent.Attachments, s.MaxImageBytes)
	if !ok {
		return entities.Reply{
			Kind: entities.ReplyKindText,
			Text: s.attachmentHint(parent.Attachments),
		}, nil
	}

	prompt := msg.Prompt(selfID)
	if prompt == "" {
		return entities.Reply{
			Kind: entities.ReplyKindText,
			Text: "Please provide a description of how you want to modify the image.",
		}, nil
	}

	log.Info("processing edit request", "attachment", att.Filename, "prompt", prompt)

	placeholderID, err := s.Progress.NotifyProcessing(ctx, msg)
	if err != nil {
		log.Warn("posting processing notice", "error", err)
	}

	img, err := s.Fetcher.FetchImage(ctx, att.URL, s.MaxImageBytes)
	if err != nil {
		return s.failureReply(placeholderID, err), fmt.Errorf("fetching image: %w", err)
	}

	// Archive writes are best-effort, a failure never reaches the user.
	if s.Archive != nil {
		if err := s.Archive.SaveInput(msg.ID, img); err != nil {
			log.Warn("archiving input image", "error", err)
		}
	}

	out, err := s.Editor.Edit(ctx, img, prompt)
	if err != nil {
		return s.failureReply(placeholderID, err), fmt.Errorf("editing image: %w", err)
	}

	if s.Archive != nil {
		if err := s.Archive.SaveOutput(msg.ID, out); err != nil {
			log.Warn("archiving output image", "error", err)
		}
	}

	return entities.Reply{
		Kind:          entities.ReplyKindImage,
		Text:          fmt.Sprintf("Here's your modified image for: %q", prompt),
		Image:         out,
		Filename:      outputFilename(att.Filename, out.MIME),
		EditMessageID: placeholderID,
	}, nil
}

func (s *Service) attachmentHint(attachments []entities.Attachment) string {
	for _, att := range attachments {
		if entities.IsSupportedImageType(att.ContentType) && att.Size > s.MaxImageBytes {
			return fmt.Sprintf("That image is too large. The limit is %d MB.", s.MaxImageBytes/(1024*1024))
		}
	}

	return "I need an image to modify. Please reply to a message that contains an image."
}

func (s *Service) failureReply(placeholderID string, err error) entities.Reply {
	return entities.Reply{
		Kind:          entities.ReplyKindText,
		Text:          userMessage(err),
		EditMessageID: placeholderID,
	}
}

func userMessage(err error) string {
	f, ok := entities.AsFailure(err)
	if !ok {
		return "Something went wrong while modifying the image. Please try again later."
	}

	switch f.Kind {
	case entities.FailureKindValidation:
		return "I can't use that image: " + f.Reason + "."
	case entities.FailureKindNetwork:
		return "I couldn't transfer the image. Please try again."
	case entities.FailureKindRemoteRejected:
		return "The model rejected this request: " + f.Reason + "."
	case entities.FailureKindQuotaExceeded:
		return "The image service is over its usage limit right now. Please wait a bit and try again."
	case entities.FailureKindTimeout:
		return "The edit took too long and timed out. Please try again later."
	default:
		return "Something went wrong while modifying the image. Please try again later."
	}
}

func firstQualifyingImage(attachments []entities.Attachment, maxBytes int64) (entities.Attachment, bool) {
	for _, att := range attachments {
		if att.QualifiesAsImage(maxBytes) {
			return att, true
		}
	}

	return entities.Attachment{}, false
}

func outputFilename(original, mimeType string) string {
	base := strings.TrimSuffix(original, path.Ext(original))
	if base == "" {
		base = "image"
	}

	return "modified_" + base + entities.ExtensionForMIME(mimeType)
}
