package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the global logger with the application and run id.
func InitLogger(app, run string) zerolog.Logger {
	logger := log.Logger.With().Str("app", app).Str("run", run).Logger()
	log.Logger = logger
	return logger
}
