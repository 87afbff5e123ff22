package syncer

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SyncOnce bool `envconfig:"SYNC_ONCE" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
