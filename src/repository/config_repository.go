package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// ConfigRepository reads and mutates system_config. Every write runs in the
// same transaction as its config_audit row.
type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{db: database.MainDB}
}

func (r *ConfigRepository) WithDB(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get returns the value for key, or def when the key is absent.
func (r *ConfigRepository) Get(ctx context.Context, key, def string) (string, error) {
	var row model.SystemConfig
	err := r.db.WithContext(ctx).First(&row, "cfg_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return def, nil
		}
		return def, err
	}
	return row.Value, nil
}

// GetAll returns the full key/value map.
func (r *ConfigRepository) GetAll(ctx context.Context) (map[string]string, error) {
	var rows []model.SystemConfig
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// WriteInput carries the audit context for one config mutation.
type WriteInput struct {
	Actor      string
	Key        string
	Value      string
	TraceID    string
	ReasonCode string
	Reason     string
	Action     string
}

// Write upserts a config key and appends the audit row in one transaction.
func (r *ConfigRepository) Write(ctx context.Context, in WriteInput) error {
	if in.Action == "" {
		in.Action = "SET"
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old model.SystemConfig
		var oldValue *string
		err := tx.First(&old, "cfg_key = ?", in.Key).Error
		if err == nil {
			v := old.Value
			oldValue = &v
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := model.SystemConfig{Key: in.Key, Value: in.Value}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cfg_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}

		audit := model.ConfigAudit{
			Actor:      in.Actor,
			Action:     in.Action,
			Key:        in.Key,
			OldValue:   oldValue,
			NewValue:   in.Value,
			TraceID:    in.TraceID,
			ReasonCode: in.ReasonCode,
			Reason:     in.Reason,
		}
		return tx.Create(&audit).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConfigRepository",
			"op":   "Write",
			"key":  in.Key,
		}).WithError(err).Error("Failed to write system config")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ConfigRepository",
		"op":          "Write",
		"key":         in.Key,
		"value":       in.Value,
		"actor":       in.Actor,
		"trace_id":    in.TraceID,
		"reason_code": in.ReasonCode,
	}).Info("System config updated")

	return nil
}
