package bot

import (
	"bytes"
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"limoni/internal/archive"
	"limoni/internal/config"
)

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot  *tgbot.Bot
	cfg  config.Config
	cmds *commands
	log  logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(cfg config.Config, svc *archive.Service, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		cfg:  cfg,
		cmds: newCommands(svc, log),
		log:  log,
	}

	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers. Everything else, including
// the remaining commands and bare entry links, goes through defaultHandler.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.log.Info("Registered /start command handler")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h *Handler) handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	fields := logrus.Fields{"chat_id": msg.Chat.ID}
	if msg.From != nil {
		fields["user_id"] = msg.From.ID
	}
	log := h.log.WithFields(fields)
	log.WithField("text", msg.Text).Debug("Received message")

	r := h.cmds.execute(ctx, msg.Text)
	if r.Document != nil {
		_, err := b.SendDocument(ctx, &tgbot.SendDocumentParams{
			ChatID: msg.Chat.ID,
			Document: &models.InputFileUpload{
				Filename: r.Document.Filename,
				Data:     bytes.NewReader(r.Document.Data),
			},
			Caption: r.Text,
		})
		if err != nil {
			log.WithError(err).Error("Failed to send document")
		}
		return
	}
	if r.Text == "" {
		return
	}

	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   r.Text,
	}); err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}
