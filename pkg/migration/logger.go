package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// migrateLogger adapts observability.Logger to migrate.Logger.
type migrateLogger struct {
	logger  observability.Logger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)),
		observability.String("component", "golang-migrate"),
	)
}

func (l migrateLogger) Verbose() bool {
	return l.verbose
}
