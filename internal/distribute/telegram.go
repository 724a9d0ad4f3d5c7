package distribute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/timmy/sprintreport/internal/domain"
)

// TelegramDistributor sends the PDF to a chat.
type TelegramDistributor struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramDistributor connects the bot. An empty endpoint uses the
// public Bot API.
func NewTelegramDistributor(token string, chatID int64, endpoint string) (*TelegramDistributor, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &TelegramDistributor{bot: bot, chatID: chatID}, nil
}

func (t *TelegramDistributor) Name() string { return "telegram" }

func (t *TelegramDistributor) Distribute(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FileBytes{Name: d.Filename, Bytes: d.Artifact})
	doc.Caption = caption(d)

	_, err := t.bot.Send(doc)
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 || apiErr.Code >= 500 || apiErr.Code == 429 {
			return domain.NewTransientError("telegram", "send_document", apiErr.Code, err)
		}
		return domain.NewPermanentError("telegram", "send_document", apiErr.Code, err)
	}
	return domain.NewTransientError("telegram", "send_document", 0, err)
}

func caption(d Delivery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s report approved", d.Job.SprintName())
	if d.Job.Approval != nil && d.Job.Approval.DecidedBy != "" {
		fmt.Fprintf(&b, " by %s", d.Job.Approval.DecidedBy)
	}
	if d.Job.Approval != nil && d.Job.Approval.Comment != "" {
		fmt.Fprintf(&b, "\n%s", d.Job.Approval.Comment)
	}
	return b.String()
}
