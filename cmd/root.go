package cmd

import (
	"fmt"
	"os"

	"github.com/ma99us/MikeDB/cmd/keys"
	"github.com/ma99us/MikeDB/cmd/kv"
	"github.com/ma99us/MikeDB/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "mikedb",
		Short: "multi-tenant document store",
		Long: fmt.Sprintf(`MikeDB (v%s)

A schema-less, multi-tenant document store with a REST api and
WebSocket change notifications. Databases live in memory or on disk
and are protected by API keys.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of MikeDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MikeDB v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(keys.KeyCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
