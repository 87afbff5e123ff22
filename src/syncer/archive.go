package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/model"
	"alphasniper/src/utils"
)

const (
	archiveRetention = 90 * 24 * time.Hour
	archiveBatchSize = 5000
)

// maybeArchive runs the daily archival once per HK day, at the HK 00:00
// boundary. Rows older than the retention window move from the hot tables
// into their *_history counterparts; each range lands in archive_audit.
// Re-runs over the same range move zero rows.
func (s *Syncer) maybeArchive(ctx context.Context) {
	hk := utils.ToHK(s.now())
	if hk.Hour() != 0 {
		return
	}
	day := hk.Format("2006-01-02")
	if day == s.lastArchiveDay {
		return
	}
	s.lastArchiveDay = day

	cutoff := s.now().Add(-archiveRetention).UnixMilli()
	traceID := uuid.NewString()

	logger.WithFields(map[string]interface{}{
		"service":   serviceName,
		"cutoff_ms": cutoff,
		"trace_id":  traceID,
	}).Info("Daily archival started")

	s.archiveTable(ctx, traceID, "market_data", cutoff, s.marketData.ArchiveCandleRange)
	s.archiveTable(ctx, traceID, "market_data_cache", cutoff, s.marketData.ArchiveCacheRange)
}

func (s *Syncer) archiveTable(ctx context.Context, traceID, table string, cutoff int64,
	move func(context.Context, int64, int) (int64, error)) {

	var total int64
	status := model.ArchiveStatusDone
	message := ""

	for {
		moved, err := move(ctx, cutoff, archiveBatchSize)
		if err != nil {
			status = model.ArchiveStatusError
			message = err.Error()
			logger.WithError(err).WithFields(map[string]interface{}{
				"service": serviceName,
				"table":   table,
			}).Error("Archival batch failed")
			break
		}
		if moved == 0 {
			break
		}
		total += moved
	}

	audit := &model.ArchiveAudit{
		ArchivedTable: table,
		FromOpenTime:  0,
		ToOpenTime:    cutoff,
		MovedRows:     total,
		TraceID:       traceID,
		Status:        status,
		Message:       utils.TruncateString(message, 480),
	}
	if err := s.marketData.RecordArchiveRun(ctx, audit); err != nil {
		logger.WithError(err).WithField("table", table).Error("Failed to record archive audit")
		return
	}

	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"table":    table,
		"moved":    total,
		"trace_id": traceID,
	}).Info("Archival range recorded")
}
