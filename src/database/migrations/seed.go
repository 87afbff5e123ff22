package migrations

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alphasniper/src/model"
)

// seedSystemConfigDefaults writes the recognized system_config keys with
// their defaults. Existing values are never overwritten.
func seedSystemConfigDefaults(tx *gorm.DB) error {
	defaults := []model.SystemConfig{
		{Key: model.ConfigKeyHaltTrading, Value: "false"},
		{Key: model.ConfigKeyEmergencyExit, Value: "false"},
		{Key: model.ConfigKeySymbols, Value: "BTCUSDT,ETHUSDT"},
		{Key: model.ConfigKeyTimeframe, Value: "15m"},
		{Key: model.ConfigKeyFeatureVersion, Value: "1"},
		{Key: model.ConfigKeyAiModelImpl, Value: "online_lr"},
		{Key: model.ConfigKeyAdxMin, Value: "25"},
		{Key: model.ConfigKeyVolRatioMin, Value: "1.5"},
		{Key: model.ConfigKeyAiScoreMin, Value: "50"},
	}

	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error
}

// seedAiModelRow creates the initial cold-start model row so readers always
// find a current model.
func seedAiModelRow(tx *gorm.DB) error {
	row := model.AiModel{
		ModelName: "setup-b-long",
		Version:   1,
		Impl:      "online_lr",
		Metrics:   "{}",
		IsCurrent: true,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}
