package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLastTwoCacheFiltersByFeatureVersion(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &MarketDataRepository{db: mockDB}

	rows := sqlmock.NewRows([]string{"id", "symbol", "bar_interval", "open_time_ms", "feature_version", "features_json"}).
		AddRow(2, "BTCUSDT", "15m", int64(1748823300000), 1, `{"adx":28}`).
		AddRow(1, "BTCUSDT", "15m", int64(1748822400000), 1, `{"adx":26}`)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "market_data_cache" WHERE symbol = $1 AND bar_interval = $2 AND feature_version = $3 ORDER BY open_time_ms DESC LIMIT $4`)).
		WithArgs("BTCUSDT", "15m", 1, 2).
		WillReturnRows(rows)

	got, err := repo.LastTwoCache(context.Background(), "BTCUSDT", "15m", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].OpenTimeMs <= got[1].OpenTimeMs {
		t.Fatalf("rows must come back newest first: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestLatestCacheReturnsNilWhenVersionAbsent(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &MarketDataRepository{db: mockDB}

	// reading at a version that was never written sees nothing, even with
	// rows present at other versions
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "market_data_cache" WHERE symbol = $1 AND bar_interval = $2 AND feature_version = $3 ORDER BY open_time_ms DESC,"market_data_cache"."id" LIMIT $4`)).
		WithArgs("BTCUSDT", "15m", 2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := repo.LatestCache(context.Background(), "BTCUSDT", "15m", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil for an unwritten feature version, got %+v", row)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
