package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/stowbase"
)

// Apply configures the standard logrus logger: level, caller
// reporting as file:line and goroutine id, and the output format.
// DEBUG=1 in the environment wins over the configured level.
func (c LoggingConfig) Apply() error {
	level, err := log.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return errors.Wrapf(stowbase.ErrInvalid, "logging level: %v", err)
	}
	if os.Getenv("DEBUG") == "1" {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{
			CallerPrettyfier: stowbase.Caller(),
			TimestampFormat:  timestampFormat,
		})
		return nil
	}
	log.SetFormatter(&log.TextFormatter{
		CallerPrettyfier: stowbase.Caller(),
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
		TimestampFormat: timestampFormat,
	})
	return nil
}

const timestampFormat = "15:04:05.999999999"
