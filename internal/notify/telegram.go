package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends messages through the Telegram Bot API
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram creates a Bot API client. It calls getMe, so a bad token fails here.
func NewTelegram(apiURL, token string) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}

	endpoint := strings.TrimRight(apiURL, "/") + "/bot%s/%s"
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, apiError("getMe", err)
	}

	return &Telegram{bot: bot}, nil
}

// Username returns the bot's username as reported by getMe
func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

// Notify implements Notifier. The chat ID of a private chat equals the user ID.
func (t *Telegram) Notify(ctx context.Context, userID string, msg Message) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", userID, err)
	}

	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = tgbotapi.ModeHTML
	if len(msg.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	return t.request(ctx, "sendMessage", out)
}

// AnswerCallback acknowledges a button press so the client stops its spinner
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID string) error {
	return t.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, ""))
}

// request sends c unless ctx is already done; the client timeout bounds the call
func (t *Telegram) request(ctx context.Context, method string, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if _, err := t.bot.Request(c); err != nil {
		return apiError(method, err)
	}
	return nil
}

// apiError keeps Bot API descriptions and drops transport errors, whose URL carries the token
func apiError(method string, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return fmt.Errorf("telegram %s failed: %s", method, tgErr.Message)
	}
	return fmt.Errorf("failed to call telegram %s", method)
}
