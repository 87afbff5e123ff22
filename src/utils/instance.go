package utils

import (
	"fmt"
	"os"
)

// InstanceID returns a stable identifier for the running process, used as
// part of the service_status primary key. An explicit INSTANCE_ID env var
// wins; otherwise service:hostname:pid.
func InstanceID(service string) string {
	if env := os.Getenv("INSTANCE_ID"); env != "" {
		return env
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%s:%d", service, host, os.Getpid())
}
