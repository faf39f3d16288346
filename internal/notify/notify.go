// Package notify delivers local notifications and absorbs best-effort faults.
package notify

import (
	"context"
	"errors"
	"fmt"

	"bookingsync/internal/config"
	"bookingsync/internal/domain"
	"bookingsync/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// LogSink writes notifications to the log.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, title, body string) error {
	s.logger.Info().Str("title", title).Str("body", body).Msg("Notification")
	return nil
}

// TelegramSender is the part of the bot API the sink needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts notifications to one chat.
type TelegramSink struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramSink(bot TelegramSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

// NewTelegramBot connects to the bot API with the configured token.
func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

func (s *TelegramSink) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, fmt.Sprintf("*%s*\n%s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title), tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body)))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort never fails: delivery errors go to the fault sink instead.
type BestEffort struct {
	next   domain.Notifier
	faults domain.FaultSink
}

func NewBestEffort(next domain.Notifier, faults domain.FaultSink) *BestEffort {
	return &BestEffort{next: next, faults: faults}
}

func (b *BestEffort) Notify(ctx context.Context, title, body string) error {
	if b.next == nil {
		return nil
	}
	b.faults.Report("notify", b.next.Notify(ctx, title, body))
	return nil
}

// LogFaults returns a fault sink that logs and counts each fault.
func LogFaults(logger *zerolog.Logger) domain.FaultSink {
	return func(f domain.Fault) {
		metrics.IncFault(f.Source)
		logger.Warn().Err(f.Err).Str("source", f.Source).Time("at", f.At).Msg("Best-effort operation failed")
	}
}
