package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/schedule"

	"github.com/rs/zerolog"
)

type SettingsService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewSettingsService(repo domain.Repository, logger *zerolog.Logger) *SettingsService {
	return &SettingsService{repo: repo, logger: logger}
}

// BusinessHours reads the stored settings and applies defaults.
func (s *SettingsService) BusinessHours(ctx context.Context) (models.BusinessHours, error) {
	return businessHours(ctx, s.repo)
}

func businessHours(ctx context.Context, store domain.SettingsStore) (models.BusinessHours, error) {
	stored, err := store.GetSettings(ctx)
	if err != nil {
		return models.BusinessHours{}, err
	}
	return schedule.BusinessHoursFromSettings(stored)
}

// GetSettings returns the effective value of every business-hours key.
func (s *SettingsService) GetSettings(ctx context.Context) (map[string]string, error) {
	hours, err := s.BusinessHours(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.SettingsFromHours(hours), nil
}

// GetSetting returns the effective value of one key.
func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	return settings[key], nil
}

// UpdateSettings validates the merged result as a whole before writing any key.
func (s *SettingsService) UpdateSettings(ctx context.Context, auth domain.AuthContext, updates map[string]string) (models.BusinessHours, error) {
	if err := auth.RequireWrite(); err != nil {
		return models.BusinessHours{}, err
	}
	if len(updates) == 0 {
		return models.BusinessHours{}, domain.NewValidationError("settings", "no settings provided")
	}
	for key := range updates {
		if err := checkKey(key); err != nil {
			return models.BusinessHours{}, err
		}
	}

	var hours models.BusinessHours
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		stored, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		merged := make(map[string]string, len(stored)+len(updates))
		for k, v := range stored {
			merged[k] = v
		}
		for k, v := range updates {
			merged[k] = strings.TrimSpace(v)
		}

		hours, err = schedule.BusinessHoursFromSettings(merged)
		if err != nil {
			return asValidation(err)
		}

		canonical := schedule.SettingsFromHours(hours)
		for key := range updates {
			if err := tx.SetSetting(ctx, key, canonical[key]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.BusinessHours{}, err
	}

	s.logger.Info().Str("subject", auth.Subject).Interface("settings", updates).Msg("Business hours updated")
	return hours, nil
}

// SeedDefaults writes values for keys that have never been set.
// Blank seed entries are skipped.
func (s *SettingsService) SeedDefaults(ctx context.Context, values map[string]string) (int, error) {
	seed := make(map[string]string, len(values))
	for _, key := range models.BusinessHoursKeys {
		if v := strings.TrimSpace(values[key]); v != "" {
			seed[key] = v
		}
	}
	if _, err := schedule.BusinessHoursFromSettings(seed); err != nil {
		return 0, err
	}

	written := 0
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		for _, key := range models.BusinessHoursKeys {
			v, ok := seed[key]
			if !ok {
				continue
			}
			wrote, err := tx.SetSettingIfAbsent(ctx, key, v)
			if err != nil {
				return err
			}
			if wrote {
				written++
			}
		}
		return nil
	})
	return written, err
}

func checkKey(key string) error {
	if !slices.Contains(models.BusinessHoursKeys, key) {
		return domain.NewValidationError("key", "unknown setting %q", key)
	}
	return nil
}

// asValidation reports a rejected settings update as caller input error.
func asValidation(err error) error {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return &domain.ValidationError{Field: cfgErr.Key, Message: cfgErr.Error()}
	}
	return err
}
