package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert = "upsert"
	TaskDelete = "delete"
)

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	AppointmentID int64 `json:"appointment_id"`
}

// SheetsClient is the spreadsheet mirror the worker writes to.
type SheetsClient interface {
	UpsertAppointment(ctx context.Context, detail *models.AppointmentDetail) error
	DeleteAppointmentRow(ctx context.Context, id int64) error
}

// Store is the persistence the worker needs: the queue itself plus
// read access to the rows being mirrored.
type Store interface {
	domain.SyncQueue
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// SheetsWorker consumes sync_queue tasks and applies them to Google Sheets.
// Upserts read the current row at processing time, so a task enqueued
// for a since-deleted appointment clears its sheet row instead.
type SheetsWorker struct {
	store         Store
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker. Zero retry fields take DefaultRetryPolicy
// values and redisClient may be nil.
func NewSheetsWorker(store Store, sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "slotbook:sheets:queue",
		deadLetterKey: "slotbook:sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// SetPollInterval changes how long the loop idles when nothing is due.
func (w *SheetsWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// EnqueueTask persists a task and schedules it via redis or the in-memory queue.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, appointmentID int64) error {
	if taskType != TaskUpsert && taskType != TaskDelete {
		return fmt.Errorf("unknown task type: %q", taskType)
	}
	if appointmentID == 0 {
		return errors.New("appointment id is required")
	}

	payload, err := json.Marshal(sheetTaskPayload{AppointmentID: appointmentID})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:      taskType,
		AppointmentID: appointmentID,
		Payload:       string(payload),
		Status:        models.SyncStatusPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("sheets_worker: memory queue full, task left to polling")
	}
	return nil
}

// Subscribe enqueues sheet updates for every appointment an event touches.
func (w *SheetsWorker) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(w.HandleEvent,
		events.EventSlotBooked,
		events.EventSlotCancelled,
		events.EventSlotBlocked,
		events.EventSlotUnblocked,
		events.EventSlotsGenerated,
		events.EventSlotsDeleted,
	)
}

// HandleEvent maps one event to upsert or delete tasks.
// Events without appointment IDs, such as blocked-range changes, are ignored.
func (w *SheetsWorker) HandleEvent(event *events.Event) error {
	var p events.AppointmentEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	taskType := TaskUpsert
	if event.Type == events.EventSlotsDeleted {
		taskType = TaskDelete
	}

	ids := p.AppointmentIDs
	if len(ids) == 0 && p.AppointmentID != 0 {
		ids = []int64{p.AppointmentID}
	}

	ctx := context.Background()
	var errs []error
	for _, id := range ids {
		if err := w.EnqueueTask(ctx, taskType, id); err != nil {
			errs = append(errs, fmt.Errorf("appointment %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Start runs the main loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets_worker: started")
	defer w.logger.Info().Msg("sheets_worker: stopped")

	for ctx.Err() == nil {
		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.processPending(ctx); n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
	}
}

// processPending handles one batch of due tasks from the database.
func (w *SheetsWorker) processPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("sheets_worker: fetch pending")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("sheets_worker: redis BRPOP")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("sheets_worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	var payload sheetTaskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}
	if payload.AppointmentID == 0 {
		payload.AppointmentID = task.AppointmentID
	}

	if err := w.handleSheetTask(ctx, task.TaskType, payload.AppointmentID); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark completed")
	}
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, id int64) error {
	if id == 0 {
		return errors.New("appointment id missing")
	}

	switch taskType {
	case TaskUpsert:
		detail, err := w.loadDetail(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return w.sheets.DeleteAppointmentRow(ctx, id)
		}
		if err != nil {
			return err
		}
		return w.sheets.UpsertAppointment(ctx, detail)
	case TaskDelete:
		return w.sheets.DeleteAppointmentRow(ctx, id)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) loadDetail(ctx context.Context, id int64) (*models.AppointmentDetail, error) {
	appt, err := w.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.AppointmentDetail{Appointment: *appt}
	if appt.UserID != nil {
		user, err := w.store.GetUserByID(ctx, *appt.UserID)
		switch {
		case err == nil:
			detail.User = user
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}
	return detail, nil
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("sheets_worker: task will retry")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark retry")
	}
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("appointment_id", task.AppointmentID).Msg("sheets_worker: task failed")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: deadletter push")
	}
}
