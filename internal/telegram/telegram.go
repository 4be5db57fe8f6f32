// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"upi_qr_bot/internal/config"
	"upi_qr_bot/internal/logging"
	"upi_qr_bot/internal/metrics"
	"upi_qr_bot/internal/upi"
)

// botAPI captures the subset of bot.Bot behavior the client relies on, so
// handlers can be exercised in tests without a live bot.
type botAPI interface {
	Start(ctx context.Context)
	RegisterHandler(handlerType bot.HandlerType, pattern string, matchType bot.MatchType, f bot.HandlerFunc) string
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// userRegistrar upserts users on first contact.
type userRegistrar interface {
	EnsureUser(ctx context.Context, userID int64, name string) (bool, error)
}

// statsProvider exposes stored-user counts for /users.
type statsProvider interface {
	CountUsers(ctx context.Context) (int64, error)
}

// userLister returns broadcast targets.
type userLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and its collaborators.
type Client struct {
	bot          botAPI
	logger       *logrus.Entry
	metrics      *metrics.Metrics
	ownerID      int64
	logChannelID int64
	defaults     upi.Defaults
	registrar    userRegistrar
	stats        statsProvider
	users        userLister
	processStart time.Time
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithUserRegistrar wires the registrar used by /start.
func WithUserRegistrar(registrar userRegistrar) Option {
	return func(c *Client) {
		c.registrar = registrar
	}
}

// WithStatsProvider wires the stored-user counter used by /users.
func WithStatsProvider(stats statsProvider) Option {
	return func(c *Client) {
		c.stats = stats
	}
}

// WithUserLister wires the broadcast target source used by /broadcast.
func WithUserLister(users userLister) Option {
	return func(c *Client) {
		c.users = users
	}
}

// WithProcessStart fixes the instant /status measures uptime from.
func WithProcessStart(start time.Time) Option {
	return func(c *Client) {
		c.processStart = start
	}
}

// WithMetrics wires the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient initializes the Telegram bot with long polling and registers the
// command handlers.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger:       logger,
		ownerID:      cfg.BotOwnerID,
		logChannelID: cfg.LogChannelID,
		defaults: upi.Defaults{
			PayeeName: cfg.DefaultPayeeName,
			Note:      cfg.DefaultNote,
		},
		processStart: time.Now(),
	}

	for _, opt := range opts {
		opt(client)
	}

	tgBot, err := createBot(cfg.BotToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(defaultHandler(logger)),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	client.registerHandlers()

	return client, nil
}

func (c *Client) registerHandlers() {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "start", bot.MatchTypeCommand, c.handleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "qr", bot.MatchTypeCommand, c.handleQR)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "help", bot.MatchTypeCommand, c.handleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "status", bot.MatchTypeCommand, c.handleStatus)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "users", bot.MatchTypeCommand, c.handleUsers)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "broadcast", bot.MatchTypeCommand, c.handleBroadcast)
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackHelp, bot.MatchTypeExact, c.handleHelpCallback)
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func defaultHandler(logger *logrus.Entry) bot.HandlerFunc {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		meta := extractUpdateMeta(update)

		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}

		if meta.text != "" {
			fields["text"] = meta.text
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}

		logger.WithFields(fields).Info("telegram update received")
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
