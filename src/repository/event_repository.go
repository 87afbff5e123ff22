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
	"alphasniper/src/utils"
)

// EventRepository writes the append-only order event stream. Rows are never
// updated or deleted; duplicate writes under the idempotency key are no-ops.
type EventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEventRepository creates a new repository instance using the main
// read/write database.
func NewEventRepository() *EventRepository {
	return &EventRepository{db: database.MainDB, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *EventRepository) WithDB(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db, now: r.now}
}

// WithClock overrides the time source. Useful for tests.
func (r *EventRepository) WithClock(now func() time.Time) *EventRepository {
	return &EventRepository{db: r.db, now: now}
}

// Append inserts one order event. The raw payload is scrubbed of sensitive
// keys and oversized strings before storage. Returns true when the row was
// newly inserted, false when the idempotency key already existed.
func (r *EventRepository) Append(ctx context.Context, ev *model.OrderEvent, payload map[string]interface{}) (bool, error) {

	if payload != nil {
		scrubbed := utils.ScrubPayload(payload)
		b, err := json.Marshal(scrubbed)
		if err != nil {
			return false, err
		}
		ev.RawPayloadJSON = string(b)
	}

	now := r.now()
	if ev.EventTsUTC.IsZero() {
		ev.EventTsUTC = now.UTC()
	}
	ev.EventTsHK = utils.ToHK(ev.EventTsUTC)

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "exchange"}, {Name: "symbol"},
				{Name: "client_order_id"}, {Name: "event_type"},
			},
			DoNothing: true,
		}).
		Create(ev)

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":            "EventRepository",
			"op":              "Append",
			"client_order_id": ev.ClientOrderID,
			"event_type":      ev.EventType,
		}).WithError(res.Error).Error("Failed to append order event")

		return false, res.Error
	}

	inserted := res.RowsAffected > 0
	if inserted {
		logger.WithFields(map[string]interface{}{
			"repo":            "EventRepository",
			"op":              "Append",
			"trace_id":        ev.TraceID,
			"client_order_id": ev.ClientOrderID,
			"event_type":      ev.EventType,
			"reason_code":     ev.ReasonCode,
		}).Info("Order event appended")
	} else {
		logger.WithFields(map[string]interface{}{
			"repo":            "EventRepository",
			"op":              "Append",
			"client_order_id": ev.ClientOrderID,
			"event_type":      ev.EventType,
		}).Debug("Order event already present, skipped")
	}

	return inserted, nil
}

// HasEvent reports whether an event with the given idempotency key exists.
func (r *EventRepository) HasEvent(ctx context.Context, exchange, symbol, clientOrderID, eventType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OrderEvent{}).
		Where("exchange = ? AND symbol = ? AND client_order_id = ? AND event_type = ?",
			exchange, symbol, clientOrderID, eventType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByClientOrderID returns all events for one client order id in
// insertion order.
func (r *EventRepository) FindByClientOrderID(ctx context.Context, exchange, symbol, clientOrderID string) ([]model.OrderEvent, error) {
	var events []model.OrderEvent
	err := r.db.WithContext(ctx).
		Where("exchange = ? AND symbol = ? AND client_order_id = ?", exchange, symbol, clientOrderID).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// RecentErrors returns the most recent ERROR events, newest first, for the
// health endpoint.
func (r *EventRepository) RecentErrors(ctx context.Context, limit int) ([]model.OrderEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	var events []model.OrderEvent
	err := r.db.WithContext(ctx).
		Where("event_type = ?", model.EventError).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
