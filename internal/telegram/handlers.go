package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"upi_qr_bot/internal/feature/broadcast"
	"upi_qr_bot/internal/logging"
	"upi_qr_bot/internal/qr"
	"upi_qr_bot/internal/upi"
)

const callbackHelp = "help"

const (
	usageText = "Invalid format.\nUse: <code>/qr &lt;upi_id&gt; &lt;amount&gt; [payee_name] [note]</code>"

	invalidUPIText = "Invalid UPI ID.\nExample valid format: <code>yourname@okaxis</code>"

	invalidAmountText = "Invalid amount. Use a positive number with up to 2 decimals.\nExample: <code>149.99</code>"

	renderFailedText = "Could not render the QR code. Please try again."

	ownerOnlyText = "This command is restricted to the bot owner."

	broadcastNeedsReplyText = "Reply to a message with /broadcast to send it to all stored users."

	helpText = "Send:\n" +
		"<code>/qr &lt;upi_id&gt; &lt;amount&gt; [payee_name] [note]</code>\n\n" +
		"Examples:\n" +
		"<code>/qr yourname@okaxis 149.99</code>\n" +
		"<code>/qr yourname@okaxis 250 John_Doe Lunch</code>\n\n" +
		"Other commands:\n" +
		"/help - this message\n" +
		"/status - uptime and latency\n\n" +
		"Tip: Use underscore (_) instead of spaces for payee name and note."

	welcomeText = "Welcome! I turn a UPI ID and amount into a scannable payment QR code.\n\n" + helpText
)

// escapeHTML sanitizes user-supplied text for HTML-parse-mode messages.
func escapeHTML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

// parseQRArgs parses "/qr <upi_id> <amount> [payee_name] [note]". Optional
// fields use underscores in place of spaces. It returns the request or the
// user-facing error text; validation happens before any external call.
func parseQRArgs(text string, defaults upi.Defaults) (upi.PaymentRequest, string) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return upi.PaymentRequest{}, usageText
	}

	upiID := strings.TrimSpace(fields[1])
	amount := strings.TrimSpace(fields[2])

	var payeeName, note string
	if len(fields) >= 4 {
		payeeName = strings.ReplaceAll(fields[3], "_", " ")
	}
	if len(fields) >= 5 {
		note = strings.ReplaceAll(fields[4], "_", " ")
	}

	if !upi.IsValidID(upiID) {
		return upi.PaymentRequest{}, invalidUPIText
	}
	if !upi.IsValidAmount(amount) {
		return upi.PaymentRequest{}, invalidAmountText
	}

	return upi.NewPaymentRequest(upiID, amount, payeeName, note, defaults), ""
}

func qrCaption(req upi.PaymentRequest) string {
	return fmt.Sprintf(
		"UPI QR Generated\nUPI ID: <code>%s</code>\nAmount: INR <code>%s</code>\nPayee: <code>%s</code>\nNote: <code>%s</code>",
		escapeHTML(req.UPIID),
		escapeHTML(req.Amount),
		escapeHTML(req.PayeeName),
		escapeHTML(req.Note),
	)
}

func (c *Client) handleStart(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.countCommand("start")

	if c.registrar != nil && msg.From != nil {
		name := displayName(msg.From)
		created, err := c.registrar.EnsureUser(ctx, msg.From.ID, name)
		if err != nil {
			c.logger.WithFields(logging.Fields{
				"event":   "start_register_error",
				"user_id": msg.From.ID,
			}).WithError(err).Warn("failed to register user")
		} else if created && c.logChannelID != 0 {
			c.notifyNewUser(ctx, msg.From.ID, name)
		}
	}

	keyboard := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "How to use", CallbackData: callbackHelp},
			},
		},
	}

	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             msg.Chat.ID,
		Text:               welcomeText,
		ParseMode:          models.ParseModeHTML,
		ReplyMarkup:        keyboard,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	}); err != nil {
		c.logger.WithField("event", "start_send_error").WithError(err).Error("failed to send welcome message")
	}
}

func (c *Client) notifyNewUser(ctx context.Context, newUserID int64, name string) {
	text := fmt.Sprintf("New user: %s (<code>%d</code>)", escapeHTML(name), newUserID)

	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    c.logChannelID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "log_channel_error",
			"user_id": newUserID,
		}).WithError(err).Warn("failed to notify log channel")
	}
}

func (c *Client) handleQR(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.countCommand("qr")

	req, errText := parseQRArgs(msg.Text, c.defaults)
	if errText != "" {
		c.reply(ctx, msg.Chat.ID, errText)
		c.countQR("rejected")
		return
	}

	link := req.Link()

	att, err := qr.RenderStyled(link, req.PayeeName, req.Amount)
	if err != nil {
		c.logger.WithField("event", "qr_styled_error").WithError(err).Warn("styled render failed, falling back to plain")
		att, err = qr.Render(link)
	}
	if err != nil {
		c.logger.WithField("event", "qr_render_error").WithError(err).Error("failed to render qr")
		c.reply(ctx, msg.Chat.ID, renderFailedText)
		c.countQR("failed")
		return
	}

	if _, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: msg.Chat.ID,
		Photo: &models.InputFileUpload{
			Filename: att.Filename,
			Data:     bytes.NewReader(att.Data),
		},
		Caption:   qrCaption(req),
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		c.logger.WithField("event", "qr_send_error").WithError(err).Error("failed to send qr photo")
		c.countQR("failed")
		return
	}

	c.countQR("success")
	c.logger.WithFields(logging.Fields{
		"event":   "qr_generated",
		"user_id": userID(msg.From),
		"upi_id":  req.UPIID,
		"amount":  req.Amount,
	}).Info("generated upi qr")
}

func (c *Client) handleHelp(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.countCommand("help")

	c.reply(ctx, msg.Chat.ID, helpText)
}

func (c *Client) handleHelpCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}

	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	}); err != nil {
		c.logger.WithField("event", "callback_answer_error").WithError(err).Warn("failed to answer callback query")
	}

	if chat := messageChatID(cb.Message); chat != 0 {
		c.reply(ctx, chat, helpText)
	}
}

func (c *Client) handleStatus(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.countCommand("status")

	started := time.Now()
	sent, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   "Measuring...",
	})
	if err != nil || sent == nil {
		c.logger.WithField("event", "status_send_error").WithError(err).Error("failed to send status probe")
		return
	}
	latency := time.Since(started)

	uptime := time.Since(c.processStart).Truncate(time.Second)
	text := fmt.Sprintf("Status\nUptime: <code>%s</code>\nLatency: <code>%d ms</code>", uptime, latency.Milliseconds())

	if _, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    msg.Chat.ID,
		MessageID: sent.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		c.logger.WithField("event", "status_edit_error").WithError(err).Error("failed to edit status message")
	}
}

func (c *Client) handleUsers(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.countCommand("users")

	if !c.isOwner(msg.From) {
		c.reply(ctx, msg.Chat.ID, ownerOnlyText)
		return
	}

	if c.stats == nil {
		c.reply(ctx, msg.Chat.ID, "User statistics are not available.")
		return
	}

	count, err := c.stats.CountUsers(ctx)
	if err != nil {
		c.logger.WithField("event", "users_count_error").WithError(err).Error("failed to count users")
		c.reply(ctx, msg.Chat.ID, "Could not read the user count.")
		return
	}

	c.reply(ctx, msg.Chat.ID, fmt.Sprintf("Stored users: <code>%d</code>", count))
}

func (c *Client) handleBroadcast(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.countCommand("broadcast")

	if !c.isOwner(msg.From) {
		c.reply(ctx, msg.Chat.ID, ownerOnlyText)
		return
	}

	if msg.ReplyToMessage == nil {
		c.reply(ctx, msg.Chat.ID, broadcastNeedsReplyText)
		return
	}

	if c.users == nil {
		c.reply(ctx, msg.Chat.ID, "The user list is not available.")
		return
	}

	ids, err := c.users.ListIDs(ctx)
	if err != nil {
		c.logger.WithField("event", "broadcast_list_error").WithError(err).Error("failed to list broadcast targets")
		c.reply(ctx, msg.Chat.ID, "Could not load the user list.")
		return
	}

	status, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   fmt.Sprintf("Broadcast started for %d users...", len(ids)),
	})
	if err != nil || status == nil {
		c.logger.WithField("event", "broadcast_status_error").WithError(err).Error("failed to send broadcast status message")
		return
	}

	sender := copySender{
		api:        c.bot,
		fromChatID: msg.Chat.ID,
		messageID:  msg.ReplyToMessage.ID,
	}

	engine := broadcast.NewEngine(sender, c.logger)
	tally, err := engine.Run(ctx, ids, func(ctx context.Context, t broadcast.Tally) {
		c.editBroadcastStatus(ctx, msg.Chat.ID, status.ID, broadcastStatusText(t, false))
	})
	if err != nil {
		c.logger.WithField("event", "broadcast_error").WithError(err).Error("broadcast aborted")
		return
	}

	c.countBroadcast(tally)
	c.editBroadcastStatus(ctx, msg.Chat.ID, status.ID, broadcastStatusText(tally, true))
}

// copySender delivers the replied-to message to one user via copyMessage, so
// text, photos, videos, and documents all broadcast the same way.
type copySender struct {
	api        botAPI
	fromChatID int64
	messageID  int
}

func (s copySender) Send(ctx context.Context, targetID int64) error {
	_, err := s.api.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     targetID,
		FromChatID: s.fromChatID,
		MessageID:  s.messageID,
	})
	return err
}

func broadcastStatusText(t broadcast.Tally, done bool) string {
	heading := "Broadcast in progress..."
	if done {
		heading = "Broadcast complete"
	}

	return fmt.Sprintf(
		"%s\nTotal: %d\nSuccessful: %d\nBlocked: %d\nDeleted accounts: %d\nUnsuccessful: %d",
		heading, t.Total, t.Successful, t.Blocked, t.Deleted, t.Unsuccessful,
	)
}

func (c *Client) editBroadcastStatus(ctx context.Context, chat int64, messageID int, text string) {
	if _, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chat,
		MessageID: messageID,
		Text:      text,
	}); err != nil {
		c.logger.WithField("event", "broadcast_status_edit_error").WithError(err).Warn("failed to update broadcast status")
	}
}

func (c *Client) reply(ctx context.Context, chat int64, text string) {
	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             chat,
		Text:               text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	}); err != nil {
		c.logger.WithField("event", "reply_error").WithError(err).Error("failed to send reply")
	}
}

func (c *Client) isOwner(user *models.User) bool {
	return user != nil && c.ownerID != 0 && user.ID == c.ownerID
}

func displayName(user *models.User) string {
	if user == nil {
		return ""
	}

	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name == "" {
		name = strings.TrimSpace(user.Username)
	}

	return name
}

func (c *Client) countCommand(command string) {
	if c.metrics == nil {
		return
	}
	c.metrics.CommandsHandled.WithLabelValues(command).Inc()
}

func (c *Client) countQR(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.QRGenerated.WithLabelValues(outcome).Inc()
}

func (c *Client) countBroadcast(t broadcast.Tally) {
	if c.metrics == nil {
		return
	}
	c.metrics.BroadcastDelivered.WithLabelValues("success").Add(float64(t.Successful))
	c.metrics.BroadcastDelivered.WithLabelValues("blocked").Add(float64(t.Blocked))
	c.metrics.BroadcastDelivered.WithLabelValues("deleted").Add(float64(t.Deleted))
	c.metrics.BroadcastDelivered.WithLabelValues("unsuccessful").Add(float64(t.Unsuccessful))
}
