package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// AiModelRepository loads and promotes serialized scorer state.
type AiModelRepository struct {
	db *gorm.DB
}

func NewAiModelRepository() *AiModelRepository {
	return &AiModelRepository{db: database.MainDB}
}

func (r *AiModelRepository) WithDB(db *gorm.DB) *AiModelRepository {
	return &AiModelRepository{db: db}
}

// FindCurrent returns the current model row for modelName, or (nil, nil).
func (r *AiModelRepository) FindCurrent(ctx context.Context, modelName string) (*model.AiModel, error) {
	var row model.AiModel
	err := r.db.WithContext(ctx).
		Where("model_name = ? AND is_current = ?", modelName, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// SaveNewVersion inserts a new model version and flips is_current to it in
// one transaction, so exactly one row per model name is ever current.
func (r *AiModelRepository) SaveNewVersion(ctx context.Context, row *model.AiModel) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.AiModel{}).
			Where("model_name = ? AND is_current = ?", row.ModelName, true).
			Update("is_current", false).Error; err != nil {
			return err
		}
		row.IsCurrent = true
		return tx.Create(row).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "AiModelRepository",
			"op":         "SaveNewVersion",
			"model_name": row.ModelName,
		}).WithError(err).Error("Failed to save model version")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "AiModelRepository",
		"op":         "SaveNewVersion",
		"model_name": row.ModelName,
		"version":    row.Version,
		"impl":       row.Impl,
	}).Info("Model version promoted")

	return nil
}

// UpdateCurrentBlob persists updated learner state in place for the current
// version, used after online partial fits.
func (r *AiModelRepository) UpdateCurrentBlob(ctx context.Context, modelName string, blob []byte, metrics string) error {
	return r.db.WithContext(ctx).
		Model(&model.AiModel{}).
		Where("model_name = ? AND is_current = ?", modelName, true).
		Updates(map[string]interface{}{"blob": blob, "metrics": metrics}).Error
}
