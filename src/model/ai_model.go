package model

import "time"

// AiModel stores serialized scorer state. Exactly one row per model name is
// current; promotion is a transactional flip.
type AiModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ModelName string    `gorm:"size:100;not null;index:idx_ai_model_name" json:"model_name"`
	Version   int       `gorm:"not null" json:"version"`
	Impl      string    `gorm:"size:50;not null" json:"impl"`
	Metrics   string    `gorm:"size:2000" json:"metrics"`
	Blob      []byte    `gorm:"type:bytea" json:"-"`
	IsCurrent bool      `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AiModel) TableName() string {
	return "ai_models"
}

// Archive run states.
const (
	ArchiveStatusDone  = "DONE"
	ArchiveStatusError = "ERROR"
)

// ArchiveAudit records one archival run per table and range.
type ArchiveAudit struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ArchivedTable string    `gorm:"size:50;not null;column:archived_table" json:"table"`
	FromOpenTime  int64     `json:"from_open_time"`
	ToOpenTime    int64     `json:"to_open_time"`
	MovedRows     int64     `json:"moved_rows"`
	TraceID       string    `gorm:"size:64" json:"trace_id"`
	Status        string    `gorm:"size:20;not null" json:"status"`
	Message       string    `gorm:"size:500" json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ArchiveAudit) TableName() string {
	return "archive_audit"
}
