package publisher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
)

// Telegram caption limit for photos.
const telegramCaptionLimit = 1024

// Telegram mirrors posts into a channel or chat.
type Telegram struct {
	bot    *telego.Bot
	chatID telego.ChatID
}

func NewTelegram(token, chatID string) (*Telegram, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: parseChatID(chatID)}, nil
}

func parseChatID(raw string) telego.ChatID {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(raw, "@") {
		raw = "@" + raw
	}
	return tu.Username(raw)
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Publish(ctx context.Context, content pipeline.Content, mediaRef string) error {
	if mediaRef != "" {
		caption := content.Text
		if len([]rune(caption)) > telegramCaptionLimit {
			caption = string([]rune(caption)[:telegramCaptionLimit])
		}
		params := tu.Photo(t.chatID, tu.FileFromURL(mediaRef)).WithCaption(caption)
		if _, err := t.bot.SendPhoto(ctx, params); err != nil {
			return pipeline.PublishError("telegram send photo", err)
		}
	} else {
		if _, err := t.bot.SendMessage(ctx, tu.Message(t.chatID, content.Text)); err != nil {
			return pipeline.PublishError("telegram send message", err)
		}
	}

	logger.DebugCF("telegram", "Post mirrored", map[string]any{
		"chat":      t.chatID.String(),
		"has_media": mediaRef != "",
	})
	return nil
}
