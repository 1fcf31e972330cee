package kv

import (
	"github.com/ma99us/MikeDB/cmd/util"
	"github.com/ma99us/MikeDB/rpc/client"
	"github.com/ma99us/MikeDB/rpc/common"
	"github.com/ma99us/MikeDB/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	apiStore *client.Store

	// KeyValueCommands represents the document command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Read and write documents of a MikeDB server",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupClientFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(appendCmd)
	KeyValueCommands.AddCommand(updateCmd)
	KeyValueCommands.AddCommand(patchCmd)
	KeyValueCommands.AddCommand(rmCmd)
	KeyValueCommands.AddCommand(dropCmd)
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(uploadCmd)
	KeyValueCommands.AddCommand(downloadCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the api client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	var err error
	apiStore, err = client.NewHTTPStore(util.GetClientConfig(), http.NewClientTransport())
	return err
}
