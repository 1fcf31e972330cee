package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ma99us/MikeDB/cmd/util"
	"github.com/ma99us/MikeDB/rpc/common"
	"github.com/ma99us/MikeDB/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the MikeDB server",
		Long:    `Start the MikeDB server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is MIKEDB_<flag> (e.g. MIKEDB_DATA_DIR=/var/lib/mikedb)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, common.DefaultEndpoint, cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/mikedb.sock, ...)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, common.DefaultDataDir(), cmdUtil.WrapString("DataDir is the root directory of the durable databases"))

	key = "codec"
	ServeCmd.PersistentFlags().String(key, "json", cmdUtil.WrapString("Encoding of the key files in the data directory (json, binary)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, common.DefaultTimeoutSecond, cmdUtil.WrapString("Timeout in seconds for reading requests and for the graceful shutdown"))

	key = "cleanup-interval"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultCleanupInterval, cmdUtil.WrapString("How often abandoned in-memory databases are looked for"))

	key = "abandon-after"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultAbandonAfter, cmdUtil.WrapString("In-memory databases without writes and without subscribers for this long are released"))

	key = "keys-file"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional YAML file of API keys seeded into an empty configuration database"))

	key = "watch-config"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Reload the API keys when the configuration database is changed on disk"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Requests per minute per API key (0 disables rate limiting)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the command line flags and environment variables into the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Codec = viper.GetString("codec")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.CleanupInterval = viper.GetDuration("cleanup-interval")
	serveCmdConfig.AbandonAfter = viper.GetDuration("abandon-after")
	serveCmdConfig.KeysFile = viper.GetString("keys-file")
	serveCmdConfig.WatchConfig = viper.GetBool("watch-config")
	serveCmdConfig.RateLimit = viper.GetInt("rate-limit")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := serveCmdConfig.Validate(); err != nil {
		return err
	}
	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := server.New(*serveCmdConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx)
}
