package model

import "time"

// Recognized system_config keys. Values are stored as strings and parsed by
// the reader.
const (
	ConfigKeyHaltTrading    = "HALT_TRADING"
	ConfigKeyEmergencyExit  = "EMERGENCY_EXIT"
	ConfigKeySymbols        = "SYMBOLS"
	ConfigKeyTimeframe      = "TIMEFRAME"
	ConfigKeyFeatureVersion = "FEATURE_VERSION"
	ConfigKeyAiModelImpl    = "AI_MODEL_IMPL"
	ConfigKeyAdxMin         = "ADX_MIN"
	ConfigKeyVolRatioMin    = "VOL_RATIO_MIN"
	ConfigKeyAiScoreMin     = "AI_SCORE_MIN"
)

// SystemConfig is the runtime-mutable key/value configuration. Writes go
// through ConfigRepository.Write so every change lands in config_audit.
type SystemConfig struct {
	Key       string    `gorm:"primaryKey;size:100;column:cfg_key" json:"key"`
	Value     string    `gorm:"size:500;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string {
	return "system_config"
}

// ConfigAudit is the append-only history of system_config mutations.
type ConfigAudit struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Actor      string    `gorm:"size:100;not null" json:"actor"`
	Action     string    `gorm:"size:50;not null" json:"action"`
	Key        string    `gorm:"size:100;not null;column:cfg_key;index" json:"key"`
	OldValue   *string   `gorm:"size:500" json:"old_value,omitempty"`
	NewValue   string    `gorm:"size:500" json:"new_value"`
	TraceID    string    `gorm:"size:64;index" json:"trace_id"`
	ReasonCode string    `gorm:"size:64" json:"reason_code"`
	Reason     string    `gorm:"size:500" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ConfigAudit) TableName() string {
	return "config_audit"
}

// Control command lifecycle states.
const (
	CommandStatusNew       = "NEW"
	CommandStatusProcessed = "PROCESSED"
	CommandStatusError     = "ERROR"
)

// Control command verbs the consumer understands.
const (
	CommandHalt          = "HALT"
	CommandResume        = "RESUME"
	CommandEmergencyExit = "EMERGENCY_EXIT"
	CommandConfigSet     = "CONFIG_SET"
)

// ControlCommand is a queued operator directive. Consumed at-least-once;
// the consumer is responsible for idempotence.
type ControlCommand struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Command     string     `gorm:"size:50;not null" json:"command"`
	Payload     string     `gorm:"size:2000" json:"payload"`
	TraceID     string     `gorm:"size:64;index" json:"trace_id"`
	Actor       string     `gorm:"size:100" json:"actor"`
	ReasonCode  string     `gorm:"size:64" json:"reason_code"`
	Reason      string     `gorm:"size:500" json:"reason"`
	Status      string     `gorm:"size:20;not null;default:NEW;index" json:"status"`
	Error       string     `gorm:"size:500" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func (ControlCommand) TableName() string {
	return "control_commands"
}

// ServiceStatus is the per-instance heartbeat row, upserted on every beat.
type ServiceStatus struct {
	ServiceName   string    `gorm:"primaryKey;size:50" json:"service_name"`
	InstanceID    string    `gorm:"primaryKey;size:120" json:"instance_id"`
	LastHeartbeat time.Time `gorm:"not null" json:"last_heartbeat"`
	StatusJSON    string    `gorm:"type:text" json:"status_json"`
}

func (ServiceStatus) TableName() string {
	return "service_status"
}
