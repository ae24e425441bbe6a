package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/hausbot/internal/delivery"
	"github.com/user/hausbot/internal/gateway"
	"github.com/user/hausbot/internal/prompt"
	"github.com/user/hausbot/internal/session"
	"github.com/user/hausbot/internal/types"
)

const maxTelegramMessage = 4096

// SourcePrefix is the session key prefix for messages arriving via Telegram.
const SourcePrefix = "telegram"

// Adapter bridges Telegram to the gateway. It feeds inbound messages in
// and, as the registered Messenger for telegram session keys, delivers
// placeholder replies and in-place edits back out.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	gateway *gateway.Gateway
	store   *session.Store
	engine  *prompt.Engine
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway, store *session.Store, engine *prompt.Engine) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:     bot,
		gateway: gw,
		store:   store,
		engine:  engine,
	}, nil
}

// Start begins long-polling for Telegram updates until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		// Off the update loop: /new waits for any in-flight turn on its
		// session and must not stall intake for other chats.
		go a.handleCommand(msg)
		return
	}

	chatID := msg.Chat.ID
	inbound := &types.InboundMessage{
		Source:     SourcePrefix,
		SessionKey: buildSessionKey(msg.From.ID, msg.Chat.ID),
		Sender:     senderName(msg.From),
		Text:       msg.Text,
	}

	err := a.gateway.HandleInbound(ctx, inbound)
	if errors.Is(err, gateway.ErrSessionBusy) {
		a.reply(chatID, "I'm still working on earlier messages in this chat. Please wait a moment.")
		return
	}
	if err != nil {
		slog.Error("handle inbound failed", "session_key", string(inbound.SessionKey), "error", err)
		a.reply(chatID, "Sorry, I encountered an error processing your message.")
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := buildSessionKey(msg.From.ID, msg.Chat.ID)

	switch msg.Command() {
	case "start":
		a.reply(chatID, "Hallo! Schick mir eine Nachricht und ich antworte dir.")

	case "new":
		a.store.Reset(key, a.gateway.SystemPrompt())
		a.reply(chatID, "Neue Unterhaltung gestartet. Der bisherige Verlauf wurde verworfen.")

	case "status":
		turns, tokens, ok := a.promptTokens(key)
		if !ok {
			a.reply(chatID, "Keine aktive Unterhaltung.")
			return
		}
		a.reply(chatID, fmt.Sprintf("Verlauf: %d Turns, ca. %d Tokens", turns, tokens))

	default:
		a.reply(chatID, "Unbekannter Befehl. Verfügbar: /start, /new, /status")
	}
}

// promptTokens reads the session via Peek, never the session lock, so
// /status answers even while a turn is streaming.
func (a *Adapter) promptTokens(key types.SessionKey) (turns, tokens int, ok bool) {
	snapshot, ok := a.store.Peek(key)
	if !ok {
		return 0, 0, false
	}
	return len(snapshot), a.engine.CountTokens(snapshot), true
}

// Send delivers a fresh message for the session's chat. Part of
// delivery.Messenger.
func (a *Adapter) Send(sessionKey types.SessionKey, text string) (delivery.MessageRef, error) {
	chatID, err := chatIDFromKey(sessionKey)
	if err != nil {
		return 0, err
	}

	parts := splitMessage(text)
	var last tgbotapi.Message
	for _, part := range parts {
		// Plain text, no parse mode: model output is not valid markdown
		// often enough that parse failures would drop replies.
		last, err = a.bot.Send(tgbotapi.NewMessage(chatID, part))
		if err != nil {
			return 0, fmt.Errorf("send message: %w", err)
		}
	}
	return delivery.MessageRef(last.MessageID), nil
}

// Update edits a previously sent message in place. Text beyond the
// Telegram message limit overflows into fresh messages after the edit.
// Part of delivery.Messenger.
func (a *Adapter) Update(sessionKey types.SessionKey, ref delivery.MessageRef, text string) error {
	chatID, err := chatIDFromKey(sessionKey)
	if err != nil {
		return err
	}

	parts := splitMessage(text)
	edit := tgbotapi.NewEditMessageText(chatID, int(ref), parts[0])
	if _, err := a.bot.Send(edit); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	for _, part := range parts[1:] {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send overflow message: %w", err)
		}
	}
	return nil
}

func (a *Adapter) reply(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			slog.Warn("send reply failed", "chat_id", chatID, "error", err)
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey(SourcePrefix,
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}

func chatIDFromKey(key types.SessionKey) (int64, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 3 || parts[0] != SourcePrefix {
		return 0, fmt.Errorf("malformed telegram session key: %s", key)
	}
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed chat id in session key %s: %w", key, err)
	}
	return chatID, nil
}

func senderName(user *tgbotapi.User) string {
	if user == nil {
		return "User"
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = user.UserName
	}
	if name == "" {
		name = "User"
	}
	return name
}
