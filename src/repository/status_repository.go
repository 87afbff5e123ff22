package repository

import (
	"context"
	"encoding/json"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alphasniper/src/database"
	"alphasniper/src/model"
)

// StatusRepository upserts service heartbeats.
type StatusRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStatusRepository() *StatusRepository {
	return &StatusRepository{db: database.MainDB, now: time.Now}
}

func (r *StatusRepository) WithDB(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db, now: r.now}
}

// Upsert refreshes the heartbeat row for (service, instance) with the given
// status snapshot.
func (r *StatusRepository) Upsert(ctx context.Context, service, instanceID string, status map[string]interface{}) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}

	row := model.ServiceStatus{
		ServiceName:   service,
		InstanceID:    instanceID,
		LastHeartbeat: r.now().UTC(),
		StatusJSON:    string(payload),
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_name"}, {Name: "instance_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_heartbeat", "status_json"}),
		}).
		Create(&row).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "StatusRepository",
			"op":      "Upsert",
			"service": service,
		}).WithError(err).Error("Failed to upsert service status")
		return err
	}

	return nil
}

// FindAll returns every heartbeat row for the health endpoint.
func (r *StatusRepository) FindAll(ctx context.Context) ([]model.ServiceStatus, error) {
	var rows []model.ServiceStatus
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
