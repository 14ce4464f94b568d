package service

import (
	"errors"
	"fmt"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramService posts schedule changes to the admin chats.
type TelegramService struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramService(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramService {
	return &TelegramService{
		bot:     bot,
		chatIDs: chatIDs,
		logger:  logger,
	}
}

func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	return s.bot.Send(msg)
}

// Broadcast sends text to every admin chat and reports all failures.
func (s *TelegramService) Broadcast(text string) error {
	var errs []error
	for _, chatID := range s.chatIDs {
		if _, err := s.SendMessage(chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers the notifier for slot state changes.
func (s *TelegramService) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(s.HandleEvent,
		events.EventSlotBooked,
		events.EventSlotCancelled,
		events.EventSlotBlocked,
		events.EventSlotUnblocked,
		events.EventSlotsDeleted,
	)
}

func (s *TelegramService) HandleEvent(event *events.Event) error {
	var p events.AppointmentEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	text := FormatEvent(event.Type, p)
	if text == "" {
		return nil
	}
	if err := s.Broadcast(text); err != nil {
		s.logger.Error().Err(err).Str("event_type", event.Type).Msg("telegram notify error")
		return err
	}
	return nil
}

// FormatEvent renders the admin message for an event, or "" for events
// that are not announced.
func FormatEvent(eventType string, p events.AppointmentEventPayload) string {
	var b strings.Builder
	slot := strings.TrimSpace(p.Date + " " + p.Time)

	switch eventType {
	case events.EventSlotBooked:
		fmt.Fprintf(&b, "Booked: %s", slot)
		if p.UserName != "" {
			fmt.Fprintf(&b, "\nCustomer: %s", p.UserName)
		}
		if contact := strings.TrimSpace(p.Phone + " " + p.Email); contact != "" {
			fmt.Fprintf(&b, "\nContact: %s", contact)
		}
	case events.EventSlotCancelled:
		fmt.Fprintf(&b, "Cancelled: %s", slot)
	case events.EventSlotBlocked:
		fmt.Fprintf(&b, "Blocked: %s", slot)
		if p.Notes != "" && p.AppointmentID == 0 {
			fmt.Fprintf(&b, "\nReason: %s", p.Notes)
		}
	case events.EventSlotUnblocked:
		fmt.Fprintf(&b, "Unblocked: %s", slot)
	case events.EventSlotsDeleted:
		fmt.Fprintf(&b, "Deleted %d slot(s) on %s", p.Count, p.Date)
	default:
		return ""
	}

	if p.ChangedBy != "" {
		fmt.Fprintf(&b, "\nBy: %s", p.ChangedBy)
	}
	return b.String()
}
