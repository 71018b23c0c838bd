package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"

	"github.com/Zetic/zpt/app/discord"
	"github.com/Zetic/zpt/app/editor"
	"github.com/Zetic/zpt/app/storage"
	"github.com/Zetic/zpt/pkg/fetch"
	"github.com/Zetic/zpt/pkg/logger"
	"github.com/Zetic/zpt/pkg/replicate"
)

var opts struct {
	DiscordToken     string        `long:"discord-token" env:"DISCORD_BOT_TOKEN" required:"true" description:"discord bot token"`
	ReplicateToken   string        `long:"replicate-token" env:"REPLICATE_API_TOKEN" required:"true" description:"replicate api token"`
	AllowedChannelID string        `long:"allowed-channel" env:"ALLOWED_CHANNEL_ID" description:"restrict handling to this channel id"`
	MaxFileSizeMB    int64         `long:"max-file-size" env:"MAX_FILE_SIZE_MB" default:"25" description:"maximum image size in megabytes"`
	ImagesFolder     string        `long:"images-folder" env:"IMAGES_FOLDER" default:"./images" description:"folder for debug copies of images, empty disables archiving"`
	Prefix           string        `long:"prefix" env:"BOT_PREFIX" default:"!" description:"command prefix"`
	PollInterval     time.Duration `long:"poll-interval" env:"EDIT_POLL_INTERVAL" default:"2s" description:"delay between prediction status polls"`
	EditTimeout      time.Duration `long:"edit-timeout" env:"EDIT_TIMEOUT" default:"5m" description:"client-side bound on a single edit job"`
	LogLevel         string        `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level: debug, info, warn, error"`
	SentryDSN        string        `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn for error reporting"`
}

var Revision = "dev"

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(logger.ParseLevel(opts.LogLevel))
	log.Info("starting bot", "revision", Revision)

	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     opts.SentryDSN,
			Release: Revision,
		})
		if err != nil {
			log.Error("initializing sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	maxBytes := opts.MaxFileSizeMB * 1024 * 1024

	var archive editor.ArchiveStore
	if opts.ImagesFolder != "" {
		files, err := storage.NewFiles(opts.ImagesFolder)
		if err != nil {
			log.Error("creating images folder", "error", err)
			os.Exit(1)
		}
		archive = files
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	fetcher := fetch.NewFetcher(httpClient)

	edits := replicate.NewClient(opts.ReplicateToken, httpClient, fetcher, replicate.Options{
		PollInterval:   opts.PollInterval,
		Timeout:        opts.EditTimeout,
		MaxOutputBytes: maxBytes,
	})

	bot := &discord.Client{
		Log:               log,
		Token:             opts.DiscordToken,
		Prefix:            opts.Prefix,
		ReplicateTokenSet: opts.ReplicateToken != "",
		AllowedChannelID:  opts.AllowedChannelID,
		MaxImageBytes:     maxBytes,
		ArchiveDir:        opts.ImagesFolder,
	}

	bot.Handler = &editor.Service{
		Log:              log,
		MaxImageBytes:    maxBytes,
		AllowedChannelID: opts.AllowedChannelID,
		Messages:         bot,
		Progress:         bot,
		Fetcher:          fetcher,
		Editor:           edits,
		Archive:          archive,
	}

	if err := bot.Start(ctx); err != nil {
		log.Error("starting discord client", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("stopping bot")

	if err := bot.Close(); err != nil {
		log.Error("closing gateway connection", "error", err)
	}

	os.Exit(0)
}
