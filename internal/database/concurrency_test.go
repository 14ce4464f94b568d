package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTaken = errors.New("slot taken")

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	slot := newSlot("09:00", models.StatusAvailable)
	require.NoError(t, db.CreateAppointment(ctx, slot))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- db.WithTx(ctx, func(tx domain.Store) error {
				appt, err := tx.GetAppointment(ctx, slot.ID)
				if err != nil {
					return err
				}
				if appt.Status != models.StatusAvailable {
					return errTaken
				}
				user := &models.User{FirstName: "User", Phone: fmt.Sprintf("555-%04d", id)}
				if err := tx.CreateUser(ctx, user); err != nil {
					return err
				}
				appt.Status = models.StatusConfirmed
				appt.UserID = &user.ID
				return tx.UpdateAppointment(ctx, appt)
			})
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, errTaken)
	}
	assert.Equal(t, 1, successCount, "exactly one booking should succeed")

	got, err := db.GetAppointment(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.NotNil(t, got.UserID)
}

func TestConcurrentSlotCreation(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "create.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	const numGoroutines = 8
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.CreateAppointment(ctx, newSlot("13:00", models.StatusAvailable))
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
	}
	assert.Equal(t, 1, successCount)

	appts, err := db.ListAppointmentsByDate(ctx, testDate())
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}
