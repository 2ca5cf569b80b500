package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "relay",
		Short: "Trace relay - fans a request out to its peer services with the same trace context",
		Long: `The relay receives a request, reads its W3C traceparent header and calls
every configured peer service with that header unchanged, so all services
share one trace_id.

Architecture:
  [Client] -> [Relay] -> [go-test-app]
                      -> [node-test-app]
                      -> [python-test-app]
                      -> [php-test-app]

Configuration is read from --config (YAML) and overridden by environment
variables such as PEERS, TRACEKIT_API_KEY, TRACEKIT_ENDPOINT and DB_DSN.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")

	root.AddCommand(newServeCommand(&configPath), newMigrateCommand(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
