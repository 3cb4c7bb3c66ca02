package spyglass

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	mapset "github.com/deckarep/golang-set/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers a Telegram message. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a message for every new resume view.
// The first snapshot seen for a resume only records the views it already has.
type TelegramNotifier struct {
	sender Sender
	chatID int64
	logger *errors.Logger

	mu   sync.Mutex
	seen map[string]mapset.Set[string]
}

// NewTelegramNotifier connects to the bot API with the configured token
func NewTelegramNotifier(cfg config.TelegramConfig, logger *errors.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to init telegram bot", err)
	}
	return NewNotifier(bot, cfg.ChatID, logger), nil
}

// NewNotifier creates a notifier around an existing sender
func NewNotifier(sender Sender, chatID int64, logger *errors.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
		seen:   make(map[string]mapset.Set[string]),
	}
}

// Notify sends one message per view not seen before for the resume
func (n *TelegramNotifier) Notify(ctx context.Context, resumeID string, _, next *types.SpyglassStats) error {
	if next == nil {
		return nil
	}

	n.mu.Lock()
	seen, known := n.seen[resumeID]
	if !known {
		seen = mapset.NewThreadUnsafeSet[string]()
		n.seen[resumeID] = seen
	}
	var fresh []types.TrackingEvent
	for _, e := range next.Events {
		if seen.Add(eventKey(e)) && known {
			fresh = append(fresh, e)
		}
	}
	n.mu.Unlock()

	var errs []error
	for _, e := range fresh {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := tgbotapi.NewMessage(n.chatID, FormatView(next, e))
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		msg.DisableWebPagePreview = true
		if _, err := n.sender.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.NewNetworkError(errors.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to send %d of %d telegram notifications", len(errs), len(fresh)), errs[0])
	}
	if len(fresh) > 0 {
		n.logger.Info("Sent spyglass notifications", "resume_id", resumeID, "count", len(fresh))
	}
	return nil
}

// Forget drops the views recorded for a resume
func (n *TelegramNotifier) Forget(resumeID string) {
	n.mu.Lock()
	delete(n.seen, resumeID)
	n.mu.Unlock()
}

func eventKey(e types.TrackingEvent) string {
	if e.ID != "" {
		return e.ID
	}
	return e.ViewedAt + "|" + e.IPAddress + "|" + e.UserAgent
}

// FormatView renders a view alert in Telegram MarkdownV2
func FormatView(stats *types.SpyglassStats, e types.TrackingEvent) string {
	esc := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s) }

	city := panels.PlainText(e.City)
	if city == "" {
		city = "Unknown City"
	}
	country := panels.PlainText(e.Country)
	if country == "" {
		country = "??"
	}
	browser, device := panels.ParseUA(e.UserAgent)

	var b strings.Builder
	b.WriteString("👁 *" + esc("New resume view") + "*\n")
	b.WriteString("📍 " + esc(city+", "+country) + "\n")
	if company := panels.PlainText(e.CompanyHint); company != "" && !strings.EqualFold(company, "unknown") {
		b.WriteString("🏢 *" + esc(company) + "*\n")
	}
	b.WriteString("🖥 " + esc(browser+" on "+device) + "\n")
	b.WriteString(esc(fmt.Sprintf("Total views: %d (%d unique)", stats.TotalViews, stats.UniqueViewers)))
	return b.String()
}
