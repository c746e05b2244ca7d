package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return time.Second
	}
	if attempt < len(c.RetryDelays) {
		return c.RetryDelays[attempt]
	}
	return c.RetryDelays[len(c.RetryDelays)-1]
}

// TelegramError represents an error from Telegram API.
type TelegramError struct {
	Code       int
	Message    string
	RetryAfter int // seconds to wait before retrying (for 429 errors)
}

func (e *TelegramError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsTelegramError checks if the error is a TelegramError.
func IsTelegramError(err error) (*TelegramError, bool) {
	var tgErr *TelegramError
	if errors.As(err, &tgErr) {
		return tgErr, true
	}
	return nil, false
}

func wrapTelegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &TelegramError{Code: apiErr.Code, Message: apiErr.Message, RetryAfter: apiErr.RetryAfter}
	}
	return err
}

// sendWithRetry waits for the limiter and calls send until it succeeds, the
// error is permanent (400, 403) or retries run out. A 429 waits for the
// interval Telegram asked for.
func sendWithRetry(ctx context.Context, limiter *rate.Limiter, cfg RetryConfig, logger zerolog.Logger, send func() error) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := send()
		if err == nil {
			return nil
		}
		lastErr = err

		wait := cfg.delay(attempt)
		if tgErr, ok := IsTelegramError(err); ok {
			switch tgErr.Code {
			case 429:
				if tgErr.RetryAfter > 0 {
					wait = time.Duration(tgErr.RetryAfter) * time.Second
				}
				logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Msg("rate limited by Telegram, waiting")
			case 400, 403:
				return err
			}
		}

		if attempt == cfg.MaxRetries {
			break
		}
		logger.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", wait).Msg("retrying telegram send")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// TelegramSender delivers messages through the Telegram Bot API.
type TelegramSender struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

// NewTelegramSender authenticates the bot token against Telegram.
func NewTelegramSender(token string, debug bool, logger zerolog.Logger) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	api.Debug = debug

	logger = logger.With().Str("component", "telegram").Logger()
	logger.Info().Str("bot", api.Self.UserName).Msg("Telegram notifier authorized")

	return &TelegramSender{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		retry:   DefaultRetryConfig(),
		logger:  logger,
	}, nil
}

func (s *TelegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	return sendWithRetry(ctx, s.limiter, s.retry, s.logger, func() error {
		_, err := s.api.Send(msg)
		return wrapTelegramError(err)
	})
}

func (s *TelegramSender) SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader, caption string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	return sendWithRetry(ctx, s.limiter, s.retry, s.logger, func() error {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: bytes.NewReader(content)})
		doc.Caption = caption
		_, err := s.api.Send(doc)
		return wrapTelegramError(err)
	})
}

// LogSender writes notifications to the log when no bot token is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notify").Logger()}
}

func (s *LogSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.logger.Info().Int64("chat_id", chatID).Str("text", text).Msg("notification")
	return nil
}

func (s *LogSender) SendDocument(_ context.Context, chatID int64, filename string, _ io.Reader, caption string) error {
	s.logger.Info().Int64("chat_id", chatID).Str("file", filename).Str("caption", caption).Msg("document")
	return nil
}
