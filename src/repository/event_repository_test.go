package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"alphasniper/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 2, 7, 0, 1, 0, time.UTC)
	return func() time.Time { return at }
}

func TestEventRepositoryAppendInsertsNewRow(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&EventRepository{db: mockDB}).WithClock(fixedClock())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "order_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	inserted, err := repo.Append(context.Background(), &model.OrderEvent{
		TraceID:       "t-1",
		Service:       "strategy-engine",
		Exchange:      "binance",
		Symbol:        "BTCUSDT",
		ClientOrderID: "asv8-BTCUSDT-BUY-15m-1748822400000-ab12cd34",
		EventType:     model.EventCreated,
		Side:          model.SideBuy,
		Qty:           0.01,
		ReasonCode:    model.ReasonSetupBSqueezeRelease,
		Reason:        "squeeze released with ADX 28",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if !inserted {
		t.Fatalf("expected inserted=true for a fresh idempotency key")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestEventRepositoryAppendScrubsPayload(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&EventRepository{db: mockDB}).WithClock(fixedClock())

	var captured string
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "order_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	ev := &model.OrderEvent{
		Exchange:      "binance",
		Symbol:        "BTCUSDT",
		ClientOrderID: "cid-1",
		EventType:     model.EventSubmitted,
	}
	if _, err := repo.Append(context.Background(), ev, map[string]interface{}{
		"orderId":   12345,
		"signature": "should-vanish",
		"api_key":   "should-vanish-too",
	}); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	captured = ev.RawPayloadJSON
	if strings.Contains(captured, "should-vanish") {
		t.Fatalf("sensitive values leaked into raw payload: %s", captured)
	}
	if !strings.Contains(captured, "orderId") {
		t.Fatalf("non-sensitive keys must survive scrubbing: %s", captured)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestEventRepositoryRecentErrorsQuery(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &EventRepository{db: mockDB, now: time.Now}

	rows := sqlmock.NewRows([]string{"id", "event_type", "reason_code"}).
		AddRow(9, model.EventError, model.ReasonOrderConfirmTimeout)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_events" WHERE event_type = $1 ORDER BY id DESC LIMIT $2`)).
		WithArgs(model.EventError, 10).
		WillReturnRows(rows)

	events, err := repo.RecentErrors(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error fetching recent errors: %v", err)
	}
	if len(events) != 1 || events[0].ReasonCode != model.ReasonOrderConfirmTimeout {
		t.Fatalf("unexpected result: %+v", events)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
