// Command ryanmq-diag loads the connection-core configuration and either
// prints it or drives one producer against a broker to exercise the
// send pipeline end to end, printing the resulting stats.
// Grounded on ValentinKolb-dKV's cmd/serve and cmd/kv commands: a
// spf13/cobra root command whose PersistentPreRunE binds flags into
// spf13/viper before RunE reads them back out.
package main

import (
	"os"

	"ryanMQ/cmd/ryanmq-diag/internal/diagcmd"
)

func main() {
	if err := diagcmd.Execute(); err != nil {
		os.Exit(1)
	}
}
