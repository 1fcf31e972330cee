package keys

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ma99us/MikeDB/cmd/util"
	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/codec"
	"github.com/ma99us/MikeDB/lib/db"
	"github.com/ma99us/MikeDB/lib/persist"
	"github.com/ma99us/MikeDB/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	checker *access.Checker

	// KeyCommands administrates the API keys of a data directory. The server
	// picks changes up on restart, or at once when it runs with --watch-config.
	KeyCommands = &cobra.Command{
		Use:               "keys",
		Short:             "Manage the API keys stored in a data directory",
		PersistentPreRunE: openConfig,
	}

	grantCmd = &cobra.Command{
		Use:   "grant [api-key] [db-pattern] [READ|WRITE]",
		Short: "Grants an API key access to the databases matching a pattern (name, \"*\" or \"prefix*\")",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := access.ParseLevel(args[2])
			if err != nil {
				return err
			}
			if err := checker.AddGrants(args[0], access.Grant{DBName: args[1], Access: level}); err != nil {
				return err
			}
			util.PrintOK("granted %s on %s to %s", level, args[1], args[0])
			return nil
		},
	}
	revokeCmd = &cobra.Command{
		Use:   "revoke [api-key]",
		Short: "Removes an API key with all its grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := checker.Revoke(args[0])
			if err != nil {
				return err
			}
			if removed {
				util.PrintOK("revoked %s", args[0])
			} else {
				util.PrintMissing("unknown API key %s", args[0])
			}
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Prints every API key with its grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := checker.List()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(keys))
			for name := range keys {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				grants := make([]string, len(keys[name]))
				for i, g := range keys[name] {
					grants[i] = fmt.Sprintf("%s=%s", g.DBName, g.Access)
				}
				util.PrintKeyValue(name, strings.Join(grants, ", "))
			}
			return nil
		},
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Writes every API key as a YAML keys file to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := checker.List()
			if err != nil {
				return err
			}
			return access.WriteKeysFile(os.Stdout, keys)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	key := "data-dir"
	KeyCommands.PersistentFlags().String(key, common.DefaultDataDir(), util.WrapString("Data directory of the server"))
	key = "codec"
	KeyCommands.PersistentFlags().String(key, "json", util.WrapString("Encoding of new key files (json, binary)"))
	key = "keys-file"
	KeyCommands.PersistentFlags().String(key, "", util.WrapString("Optional YAML file of API keys seeded into an empty configuration database"))
	key = "log-level"
	KeyCommands.PersistentFlags().String(key, "warn", util.WrapString("LogLevel (debug, info, warn, error)"))

	KeyCommands.AddCommand(grantCmd)
	KeyCommands.AddCommand(revokeCmd)
	KeyCommands.AddCommand(listCmd)
	KeyCommands.AddCommand(exportCmd)
}

// openConfig opens the configuration database of the data directory without a server
func openConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	c, err := codec.ByName(viper.GetString("codec"))
	if err != nil {
		return err
	}
	p, err := persist.New(viper.GetString("data-dir"), c)
	if err != nil {
		return err
	}

	var seeds map[string][]access.Grant
	if path := viper.GetString("keys-file"); path != "" {
		if seeds, err = access.LoadKeysFile(path); err != nil {
			return err
		}
	}
	registry := db.New(db.Options{Persist: p})
	checker = access.NewChecker(registry.Config(), seeds)
	return nil
}
