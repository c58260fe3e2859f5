// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_community_bot/internal/broadcast"
	"tg_community_bot/internal/config"
	"tg_community_bot/internal/domain"
	"tg_community_bot/internal/logging"
)

// Registry is the user-registry surface the handlers depend on.
type Registry interface {
	RegisterIfAbsent(ctx context.Context, user domain.User) (bool, error)
	Deactivate(ctx context.Context, userID int64) error
	ListActiveIDs(ctx context.Context) ([]int64, error)
	ListActiveIDsByCategory(ctx context.Context, category int) ([]int64, error)
}

// Stats reports active-user counts for the admin panel.
type Stats interface {
	CountActive(ctx context.Context) (int64, error)
	CountActiveByCategory(ctx context.Context) (map[int]int64, error)
}

// Dispatcher fans one payload out to a target list.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload any, targetIDs []int64) (broadcast.Report, error)
}

// botAPI captures the subset of bot.Bot behavior the client relies on to
// allow lightweight stubbing in tests without a live Telegram connection.
type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	ApproveChatJoinRequest(ctx context.Context, params *bot.ApproveChatJoinRequestParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
		"chat_join_request",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// pendingBroadcast records that an admin's next message is a broadcast
// payload. A nil category targets all active users.
type pendingBroadcast struct {
	category *int
}

// Client wraps the Telegram bot instance and the collaborators the handlers
// drive: the user registry, the stats provider, and the broadcast dispatcher.
type Client struct {
	bot       botAPI
	transport *Transport
	logger    *logrus.Entry
	cfg       config.Config

	registry   Registry
	stats      Stats
	dispatcher Dispatcher

	mu      sync.Mutex
	pending map[int64]pendingBroadcast
}

// Option customizes client construction.
type Option func(*Client)

// WithRegistry wires the user registry into the handlers.
func WithRegistry(registry Registry) Option {
	return func(c *Client) { c.registry = registry }
}

// WithStats wires the stats provider into the admin panel.
func WithStats(stats Stats) Option {
	return func(c *Client) { c.stats = stats }
}

// WithDispatcher overrides the dispatcher built by NewClient; used in tests.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(c *Client) { c.dispatcher = dispatcher }
}

// NewClient initializes the Telegram bot with long polling and the
// community-bot handlers: join-request approval, /start registration, and
// the /admin panel.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{
		logger:  logger,
		cfg:     cfg,
		pending: make(map[int64]pendingBroadcast),
	}

	for _, opt := range opts {
		opt(c)
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handleDefault),
		bot.WithErrorsHandler(errorHandler(logger)),
		bot.WithMessageTextHandler("/start", bot.MatchTypePrefix, c.handleStart),
		bot.WithMessageTextHandler("/admin", bot.MatchTypePrefix, c.handleAdmin),
		bot.WithCallbackQueryDataHandler(callbackPrefix, bot.MatchTypePrefix, c.handleAdminCallback),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	c.bot = tgBot
	c.transport = &Transport{api: tgBot}

	if c.dispatcher == nil {
		var deactivator broadcast.Deactivator
		if c.registry != nil {
			deactivator = c.registry
		}
		c.dispatcher = broadcast.NewDispatcher(c.transport, deactivator, cfg.BroadcastPause, logger)
	}

	return c, nil
}

// Transport returns the delivery adapter backed by this client's bot
// instance; the scheduled export task sends documents through it.
func (c *Client) Transport() *Transport {
	return c.transport
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

func (c *Client) setPending(adminID int64, category *int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[adminID] = pendingBroadcast{category: category}
}

func (c *Client) takePending(adminID int64) (pendingBroadcast, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, found := c.pending[adminID]
	if found {
		delete(c.pending, adminID)
	}
	return p, found
}

func (c *Client) clearPending(adminID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, adminID)
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

func callbackChatID(msg models.MaybeInaccessibleMessage) int64 {
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

func callbackMessageID(msg models.MaybeInaccessibleMessage) int {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.MessageID
	default:
		return 0
	}
}
