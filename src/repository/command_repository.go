package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// CommandRepository manages the control command queue.
type CommandRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCommandRepository() *CommandRepository {
	return &CommandRepository{db: database.MainDB, now: time.Now}
}

func (r *CommandRepository) WithDB(db *gorm.DB) *CommandRepository {
	return &CommandRepository{db: db, now: r.now}
}

// Enqueue inserts a NEW command and returns its id.
func (r *CommandRepository) Enqueue(ctx context.Context, cmd *model.ControlCommand) (uint, error) {
	cmd.Status = model.CommandStatusNew
	if err := r.db.WithContext(ctx).Create(cmd).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "CommandRepository",
			"op":      "Enqueue",
			"command": cmd.Command,
		}).WithError(err).Error("Failed to enqueue control command")
		return 0, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "CommandRepository",
		"op":       "Enqueue",
		"id":       cmd.ID,
		"command":  cmd.Command,
		"actor":    cmd.Actor,
		"trace_id": cmd.TraceID,
	}).Info("Control command enqueued")

	return cmd.ID, nil
}

// ClaimNextNew returns the oldest NEW command, or (nil, nil) when the queue
// is empty. The caller must finish with MarkProcessed or MarkError; a crash
// between claim and mark means the command is re-delivered, which is why
// consumers are required to be idempotent.
func (r *CommandRepository) ClaimNextNew(ctx context.Context) (*model.ControlCommand, error) {
	var cmd model.ControlCommand
	err := r.db.WithContext(ctx).
		Where("status = ?", model.CommandStatusNew).
		Order("id ASC").
		First(&cmd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cmd, nil
}

// MarkProcessed transitions NEW -> PROCESSED with a conditional update so a
// concurrent consumer can not double-complete the same command.
func (r *CommandRepository) MarkProcessed(ctx context.Context, id uint) (bool, error) {
	now := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.ControlCommand{}).
		Where("id = ? AND status = ?", id, model.CommandStatusNew).
		Updates(map[string]interface{}{
			"status":       model.CommandStatusProcessed,
			"processed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkError transitions NEW -> ERROR recording the failure reason.
func (r *CommandRepository) MarkError(ctx context.Context, id uint, reason string) (bool, error) {
	now := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.ControlCommand{}).
		Where("id = ? AND status = ?", id, model.CommandStatusNew).
		Updates(map[string]interface{}{
			"status":       model.CommandStatusError,
			"error":        reason,
			"processed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
