package service

import (
	"context"
	"testing"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsService(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsWhenEmpty", func(t *testing.T) {
		f := newFixture(t)
		settings, err := f.settings.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			models.SettingDailyStart: "09:00",
			models.SettingDailyEnd:   "17:00",
			models.SettingLunchStart: "12:00",
			models.SettingLunchEnd:   "13:00",
			models.SettingDuration:   "30",
		}, settings)

		v, err := f.settings.GetSetting(ctx, models.SettingDuration)
		require.NoError(t, err)
		assert.Equal(t, "30", v)

		_, err = f.settings.GetSetting(ctx, "timezone")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UpdateWritesCanonicalValues", func(t *testing.T) {
		f := newFixture(t)
		hours, err := f.settings.UpdateSettings(ctx, admin, map[string]string{
			models.SettingDailyStart: " 8:00 ",
			models.SettingDuration:   "45",
		})
		require.NoError(t, err)
		assert.Equal(t, 45, hours.SlotDuration)
		assert.Equal(t, "08:00", hours.DailyStart.String())

		stored, err := f.db.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			models.SettingDailyStart: "08:00",
			models.SettingDuration:   "45",
		}, stored)
	})

	t.Run("RejectedUpdateWritesNothing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.settings.UpdateSettings(ctx, admin, map[string]string{
			models.SettingDailyStart: "18:00",
			models.SettingDuration:   "20",
		})
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.settings.UpdateSettings(ctx, admin, map[string]string{models.SettingDuration: "0"})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, models.SettingDuration, verr.Field)

		stored, err := f.db.GetSettings(ctx)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("UpdateRejectsUnknownAndEmpty", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.settings.UpdateSettings(ctx, admin, map[string]string{"color": "red"})
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = f.settings.UpdateSettings(ctx, admin, nil)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.settings.UpdateSettings(ctx, admin, map[string]string{models.SettingLunchEnd: ""})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, models.SettingLunchEnd, verr.Field)
		_, err = f.settings.UpdateSettings(ctx, readOnly, map[string]string{models.SettingDuration: "20"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("SeedDefaultsKeepsExisting", func(t *testing.T) {
		f := newFixture(t)
		f.setHours(t, map[string]string{models.SettingDuration: "20"})

		n, err := f.settings.SeedDefaults(ctx, map[string]string{
			models.SettingDailyStart: "08:00",
			models.SettingDuration:   "60",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		hours, err := f.settings.BusinessHours(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, hours.SlotDuration)
		assert.Equal(t, "08:00", hours.DailyStart.String())

		n, err = f.settings.SeedDefaults(ctx, map[string]string{models.SettingLunchStart: " "})
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = f.settings.SeedDefaults(ctx, map[string]string{models.SettingLunchEnd: "noon"})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}
