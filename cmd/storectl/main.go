package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storectl",
		Short: "Inspect a running tethys store runtime",
		Long: `storectl connects to an application's devtools endpoint and inspects
its store runtime.

Commands:
  • stores — list live store instances
  • watch  — tail snapshot publishes and dispatch lifecycle events

The application must serve the devtools endpoint:

    srv := devtools.New(devtools.WithAddr(":9229"))
    go srv.ListenAndServe()`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("addr", "localhost:9229", "Devtools endpoint host:port")

	rootCmd.AddCommand(
		storesCmd(),
		watchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
