package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_community_bot/internal/broadcast"
	"tg_community_bot/internal/domain"
	"tg_community_bot/internal/export"
	"tg_community_bot/internal/logging"
)

const (
	callbackPrefix = "admin_"

	cbStats           = "admin_stats"
	cbExportAll       = "admin_export_all"
	cbExportPrefix    = "admin_export_"
	cbBroadcastAll    = "admin_broadcast_all"
	cbBroadcastPrefix = "admin_broadcast_"
	cbCancel          = "admin_cancel"
	cbBack            = "admin_back"

	adminPanelText = "Admin panel. Pick an action:"
)

// handleDefault receives everything without a dedicated handler: join
// requests, pending broadcast payloads from admins, and the rest of the
// update stream (logged only).
func (c *Client) handleDefault(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	if update.ChatJoinRequest != nil {
		c.handleJoinRequest(ctx, update.ChatJoinRequest)
		return
	}

	if msg := update.Message; msg != nil && msg.From != nil && c.cfg.IsAdmin(msg.From.ID) {
		if pending, found := c.takePending(msg.From.ID); found {
			c.runBroadcast(ctx, msg, pending)
			return
		}
	}

	c.logUpdate(update)
}

// handleJoinRequest approves the request, registers the user, and greets
// them in their private chat. Every step is best-effort: a failed greeting
// never undoes the approval.
func (c *Client) handleJoinRequest(ctx context.Context, req *models.ChatJoinRequest) {
	logger := c.logger.WithFields(logging.Fields{
		"event":   "join_request",
		"user_id": req.From.ID,
		"chat_id": req.Chat.ID,
	})

	if _, err := c.bot.ApproveChatJoinRequest(ctx, &bot.ApproveChatJoinRequestParams{
		ChatID: req.Chat.ID,
		UserID: req.From.ID,
	}); err != nil {
		logger.WithError(err).Error("failed to approve join request")
		return
	}

	logger.Info("approved join request")

	c.registerUser(ctx, &req.From)

	if err := c.sendText(ctx, req.From.ID, c.cfg.WelcomeMessage, nil); err != nil {
		logger.WithError(err).Warn("failed to send welcome message")
	}
}

// handleStart registers the user on first contact and replies with the
// welcome message.
func (c *Client) handleStart(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	c.registerUser(ctx, msg.From)

	if err := c.sendText(ctx, msg.Chat.ID, c.cfg.WelcomeMessage, nil); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "welcome_failed",
			"user_id": msg.From.ID,
		}).WithError(err).Warn("failed to send welcome message")
	}
}

// handleAdmin opens the admin panel for configured admins.
func (c *Client) handleAdmin(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !c.cfg.IsAdmin(msg.From.ID) {
		_ = c.sendText(ctx, msg.Chat.ID, "You do not have access to the admin panel.", nil)
		return
	}

	if err := c.sendText(ctx, msg.Chat.ID, adminPanelText, adminKeyboard()); err != nil {
		c.logger.WithField("event", "admin_panel_failed").WithError(err).Warn("failed to open admin panel")
	}
}

func (c *Client) handleAdminCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}

	_, _ = c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: query.ID})

	if !c.cfg.IsAdmin(query.From.ID) {
		return
	}

	chat := callbackChatID(query.Message)
	msgID := callbackMessageID(query.Message)
	data := query.Data

	switch {
	case data == cbStats:
		c.showStats(ctx, chat, msgID)
	case data == cbExportAll:
		c.exportAudience(ctx, chat, msgID, nil)
	case data == cbBroadcastAll:
		c.armBroadcast(ctx, query.From.ID, chat, msgID, nil)
	case data == cbCancel:
		c.clearPending(query.From.ID)
		c.editText(ctx, chat, msgID, "Action cancelled.", backKeyboard())
	case data == cbBack:
		c.clearPending(query.From.ID)
		c.editText(ctx, chat, msgID, adminPanelText, adminKeyboard())
	case strings.HasPrefix(data, cbExportPrefix):
		if category, err := parseCategorySuffix(data, cbExportPrefix); err == nil {
			c.exportAudience(ctx, chat, msgID, &category)
		}
	case strings.HasPrefix(data, cbBroadcastPrefix):
		if category, err := parseCategorySuffix(data, cbBroadcastPrefix); err == nil {
			c.armBroadcast(ctx, query.From.ID, chat, msgID, &category)
		}
	default:
		c.logger.WithFields(logging.Fields{
			"event": "admin_callback_unknown",
			"data":  data,
		}).Warn("unknown admin callback")
	}
}

func (c *Client) showStats(ctx context.Context, chat int64, msgID int) {
	if c.stats == nil {
		c.editText(ctx, chat, msgID, "Stats are unavailable.", backKeyboard())
		return
	}

	total, err := c.stats.CountActive(ctx)
	if err != nil {
		c.reportStorageFailure(ctx, chat, msgID, err)
		return
	}
	byCategory, err := c.stats.CountActiveByCategory(ctx)
	if err != nil {
		c.reportStorageFailure(ctx, chat, msgID, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Bot statistics\n\nActive users: %d\n\nBy category:\n", total)
	for _, code := range domain.KnownCategories {
		fmt.Fprintf(&b, "- %s: %d\n", domain.CategoryLabel(code), byCategory[code])
	}

	c.editText(ctx, chat, msgID, strings.TrimRight(b.String(), "\n"), backKeyboard())
}

// exportAudience uploads the id list for the whole registry (nil category)
// or one category.
func (c *Client) exportAudience(ctx context.Context, chat int64, msgID int, category *int) {
	if c.registry == nil {
		c.editText(ctx, chat, msgID, "Export is unavailable.", backKeyboard())
		return
	}

	ids, label, filename, err := c.resolveAudience(ctx, category)
	if err != nil {
		c.reportStorageFailure(ctx, chat, msgID, err)
		return
	}

	if len(ids) == 0 {
		c.editText(ctx, chat, msgID, fmt.Sprintf("No users found for %s.", label), backKeyboard())
		return
	}

	caption := fmt.Sprintf("%s: %d ids", label, len(ids))
	if err := c.transport.SendDocument(ctx, chat, export.Snapshot(ids), filename, caption); err != nil {
		c.logger.WithField("event", "export_upload_failed").WithError(err).Error("failed to upload export")
		c.editText(ctx, chat, msgID, "Failed to send the export file.", backKeyboard())
		return
	}

	c.editText(ctx, chat, msgID, "File sent.", backKeyboard())
}

// armBroadcast records that the admin's next message is the broadcast
// payload for the chosen audience.
func (c *Client) armBroadcast(ctx context.Context, adminID, chat int64, msgID int, category *int) {
	c.setPending(adminID, category)

	audience := "all users"
	if category != nil {
		audience = fmt.Sprintf("category %q", domain.CategoryLabel(*category))
	}

	c.editText(ctx, chat, msgID,
		fmt.Sprintf("Broadcast to %s.\n\nSend the message to deliver. Text, photos, videos, and documents are supported.", audience),
		cancelKeyboard(),
	)
}

// runBroadcast resolves the audience snapshot, dispatches the admin's
// message to it, and reports the outcome back to the admin.
func (c *Client) runBroadcast(ctx context.Context, msg *models.Message, pending pendingBroadcast) {
	ids, label, _, err := c.resolveAudience(ctx, pending.category)
	if err != nil {
		c.logger.WithField("event", "broadcast_audience_failed").WithError(err).Error("failed to resolve broadcast audience")
		_ = c.sendText(ctx, msg.Chat.ID, "Failed to read the user registry; broadcast aborted.", backKeyboard())
		return
	}

	_ = c.sendText(ctx, msg.Chat.ID,
		fmt.Sprintf("Starting broadcast to %s (%d users)...", label, len(ids)), nil)

	payload := CopyRef{FromChatID: msg.Chat.ID, MessageID: msg.ID}
	report, err := c.dispatcher.Dispatch(ctx, payload, ids)
	switch {
	case errors.Is(err, broadcast.ErrEmptyAudience):
		_ = c.sendText(ctx, msg.Chat.ID, fmt.Sprintf("No users to broadcast to (%s).", label), backKeyboard())
	case err != nil:
		_ = c.sendText(ctx, msg.Chat.ID,
			fmt.Sprintf("Broadcast interrupted after %d of %d attempts: delivered %d, failed %d.",
				report.Attempted, len(ids), report.Success, report.Failed), backKeyboard())
	default:
		_ = c.sendText(ctx, msg.Chat.ID,
			fmt.Sprintf("Broadcast finished.\n\nDelivered: %d\nFailed: %d", report.Success, report.Failed), backKeyboard())
	}
}

// resolveAudience snapshots the target id list for the whole registry (nil
// category) or one category, along with a display label and export filename.
func (c *Client) resolveAudience(ctx context.Context, category *int) ([]int64, string, string, error) {
	if category == nil {
		ids, err := c.registry.ListActiveIDs(ctx)
		return ids, "all users", "all_users.txt", err
	}

	ids, err := c.registry.ListActiveIDsByCategory(ctx, *category)
	label := fmt.Sprintf("category %q", domain.CategoryLabel(*category))
	filename := fmt.Sprintf("category_%d.txt", *category)
	return ids, label, filename, err
}

func (c *Client) registerUser(ctx context.Context, from *models.User) {
	if c.registry == nil || from == nil {
		return
	}

	if _, err := c.registry.RegisterIfAbsent(ctx, domain.User{
		UserID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "register_failed",
			"user_id": from.ID,
		}).WithError(err).Error("failed to register user")
	}
}

func (c *Client) reportStorageFailure(ctx context.Context, chat int64, msgID int, err error) {
	c.logger.WithField("event", "registry_read_failed").WithError(err).Error("registry read failed")
	c.editText(ctx, chat, msgID, "Failed to read the user registry.", backKeyboard())
}

func (c *Client) sendText(ctx context.Context, chat int64, text string, markup models.ReplyMarkup) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chat,
		Text:        text,
		ReplyMarkup: markup,
	})
	return err
}

func (c *Client) editText(ctx context.Context, chat int64, msgID int, text string, markup models.ReplyMarkup) {
	if chat == 0 || msgID == 0 {
		return
	}

	if _, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chat,
		MessageID:   msgID,
		Text:        text,
		ReplyMarkup: markup,
	}); err != nil {
		c.logger.WithField("event", "edit_failed").WithError(err).Debug("failed to edit panel message")
	}
}

func (c *Client) logUpdate(update *models.Update) {
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

	c.logger.WithFields(fields).Debug("telegram update received")
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
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
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     callbackChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	case update.ChatJoinRequest != nil:
		return updateMeta{
			userID:     update.ChatJoinRequest.From.ID,
			chatID:     update.ChatJoinRequest.Chat.ID,
			updateType: "chat_join_request",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func parseCategorySuffix(data, prefix string) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(data, prefix))
}

func adminKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Stats", CallbackData: cbStats},
			},
			{
				{Text: "Export all IDs", CallbackData: cbExportAll},
			},
			categoryButtons("Export", cbExportPrefix),
			{
				{Text: "Broadcast to all", CallbackData: cbBroadcastAll},
			},
			categoryButtons("Broadcast", cbBroadcastPrefix),
		},
	}
}

func categoryButtons(action, prefix string) []models.InlineKeyboardButton {
	codes := []int{domain.CategoryNewcomer, domain.CategoryIntermediate, domain.CategoryHigh}

	buttons := make([]models.InlineKeyboardButton, 0, len(codes))
	for _, code := range codes {
		buttons = append(buttons, models.InlineKeyboardButton{
			Text:         fmt.Sprintf("%s: %s", action, domain.CategoryLabel(code)),
			CallbackData: fmt.Sprintf("%s%d", prefix, code),
		})
	}

	return buttons
}

func cancelKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Cancel", CallbackData: cbCancel}},
		},
	}
}

func backKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Back to admin panel", CallbackData: cbBack}},
		},
	}
}
