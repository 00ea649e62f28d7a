// Package telegram answers images sent to a Telegram bot with a pre-filter verdict.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	aidetect "github.com/anatolykoptev/go-aidetect"
)

const (
	msgStart = `👋 Send me a photo or an image file and I will check it for signs of AI generation.

The quick check looks at sharpening, smoothing, color statistics, resolution and metadata.
Uncertain cases are passed to a slower ML model when one is configured.`

	msgSendImage       = "📸 Please send a photo or an image file."
	msgUnknownCommand  = "❓ Unknown command. Use /help."
	msgProcessingError = "⚠️ Could not download the image. Please try again."

	// maxInFlight bounds messages handled at once.
	maxInFlight = 8
)

// Bot is the Telegram front end of the detector.
type Bot struct {
	api      *tgbotapi.BotAPI
	detector *aidetect.Config
	verifier aidetect.Verifier
	timeout  time.Duration
	client   *http.Client
}

// NewBot authorizes token and returns a bot. verifier may be nil.
func NewBot(token string, detector *aidetect.Config, verifier aidetect.Verifier, timeout time.Duration) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	slog.Info("aidetect: telegram bot authorized", "account", api.Self.UserName)

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bot{
		api:      api,
		detector: detector,
		verifier: verifier,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Run processes updates until ctx is cancelled. Messages are handled
// concurrently, at most maxInFlight at a time; Run returns once the
// in-flight ones finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	return dispatch(ctx, updates, maxInFlight, b.handleMessage)
}

func dispatch(ctx context.Context, updates <-chan tgbotapi.Update, limit int,
	handle func(context.Context, *tgbotapi.Message),
) error {
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer func() {
					<-sem
					wg.Done()
				}()
				handle(ctx, msg)
			}(update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.sendMessage(msg.Chat.ID, msg.MessageID, msgStart)
		default:
			b.sendMessage(msg.Chat.ID, msg.MessageID, msgUnknownCommand)
		}
		return
	}

	fileID, ok := imageFileID(msg)
	if !ok {
		b.sendMessage(msg.Chat.ID, msg.MessageID, msgSendImage)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	data, err := b.downloadFile(ctx, fileID)
	if err != nil {
		slog.Warn("aidetect: telegram download failed", "chat", msg.Chat.ID, "error", err)
		b.sendMessage(msg.Chat.ID, msg.MessageID, msgProcessingError)
		return
	}

	res := b.detector.Analyze(ctx, data)
	var verdict *aidetect.Verdict
	if res.OK() && b.verifier != nil {
		verdict, err = b.detector.Verify(ctx, b.verifier, data, res)
		if err != nil {
			slog.Warn("aidetect: telegram verification failed", "hash", res.ImageHash, "error", err)
		}
	}
	b.sendMessage(msg.Chat.ID, msg.MessageID, FormatReply(res, verdict))
}

// imageFileID picks the largest photo size, or an image document.
func imageFileID(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, true
	}
	return "", false
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	limit := b.detector.Heuristics.MaxFileSize
	if limit <= 0 {
		limit = aidetect.DefaultMaxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("read file: empty body")
	}
	return data, nil
}

func (b *Bot) sendMessage(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := b.api.Send(msg); err != nil {
		slog.Warn("aidetect: telegram send failed", "chat", chatID, "error", err)
	}
}
