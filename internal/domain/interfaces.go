package domain

import (
	"context"
	"time"

	"slotbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type AppointmentStore interface {
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	ListAppointmentsByDate(ctx context.Context, date time.Time) ([]*models.Appointment, error)
	ListAppointmentsInRange(ctx context.Context, start, end time.Time) ([]*models.Appointment, error)
	ListAppointmentDetails(ctx context.Context, start, end time.Time) ([]*models.AppointmentDetail, error)
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	UpdateAppointment(ctx context.Context, appt *models.Appointment) error
	DeleteAppointment(ctx context.Context, id int64) error
	DeleteAppointmentsByDate(ctx context.Context, date time.Time) (int64, error)
}

type BlockStore interface {
	GetBlockedRange(ctx context.Context, id int64) (*models.BlockedRange, error)
	ListBlockedRanges(ctx context.Context, date time.Time) ([]*models.BlockedRange, error)
	CreateBlockedRange(ctx context.Context, block *models.BlockedRange) error
	DeleteBlockedRange(ctx context.Context, id int64) error
}

type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUsersByContact(ctx context.Context, phone, email string) ([]*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	SetSettingIfAbsent(ctx context.Context, key, value string) (bool, error)
}

// Store is everything a single unit of work can touch.
type Store interface {
	AppointmentStore
	BlockStore
	UserStore
	SettingsStore
}

// Repository is a Store that can also run a function atomically.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// StatusCache holds computed day statuses keyed by date.
type StatusCache interface {
	Get(ctx context.Context, date time.Time) (*models.DayStatus, error)
	Set(ctx context.Context, status *models.DayStatus) error
	Invalidate(ctx context.Context, dates ...time.Time) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
