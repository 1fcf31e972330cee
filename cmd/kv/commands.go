package kv

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ma99us/MikeDB/cmd/util"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [db] [key]",
		Short: "Reads the value of a key, a list entry or a page of a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbName, key := args[0], args[1]
			fields := fieldsFlag(cmd)
			id, _ := cmd.Flags().GetInt64("id")
			first, _ := cmd.Flags().GetInt("first")
			limit, _ := cmd.Flags().GetInt("max")

			var v value.Value
			var loaded bool
			var err error
			switch {
			case id > store.NoID:
				v, loaded, err = apiStore.GetItem(dbName, key, id, fields)
			case first > 0 || limit >= 0:
				v, loaded, err = apiStore.GetPage(dbName, key, first, limit, fields)
			default:
				v, loaded, err = apiStore.Get(dbName, key, fields)
			}
			if err != nil {
				return err
			}
			if !loaded {
				util.PrintMissing("%s/%s not found", dbName, key)
				return nil
			}
			if rec, ok := v.AsFile(); ok {
				util.PrintKeyValue("file", rec.FileName)
				util.PrintKeyValue("type", rec.MimeType)
				util.PrintKeyValue("size", strconv.FormatInt(rec.Size, 10))
				return nil
			}
			return util.PrintValue(v)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [db] [key] [value]",
		Short: "Replaces the value of a key (JSON, anything else is stored as a string)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := apiStore.Put(args[0], args[1], util.ParseValue(args[2]), sessionID())
			return reportWrite(args[0], args[1], created, err)
		},
	}
	appendCmd = &cobra.Command{
		Use:   "append [db] [key] [value]",
		Short: "Adds a value (or every element of a JSON array) to a list",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _ := cmd.Flags().GetInt("index")
			created, err := apiStore.Append(args[0], args[1], util.ParseValue(args[2]), index, sessionID())
			return reportWrite(args[0], args[1], created, err)
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [db] [key] [value]",
		Short: "Replaces the list element at --index or the entries with the id of the value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _ := cmd.Flags().GetInt("index")
			created, err := apiStore.Update(args[0], args[1], util.ParseValue(args[2]), index, sessionID())
			return reportWrite(args[0], args[1], created, err)
		},
	}
	patchCmd = &cobra.Command{
		Use:   "patch [db] [key] [merge-patch]",
		Short: "Merges a JSON merge patch (RFC 7386) into the object stored under a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, _, err := apiStore.MergePatch(args[0], args[1], []byte(args[2]), sessionID())
			if err != nil {
				return err
			}
			return util.PrintValue(merged)
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [db] [key]",
		Short: "Deletes a key, or a list entry by --index or --id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _ := cmd.Flags().GetInt("index")
			id, _ := cmd.Flags().GetInt64("id")
			removed, err := apiStore.RemoveItem(args[0], args[1], index, id, sessionID())
			if err != nil {
				return err
			}
			if removed {
				util.PrintOK("removed %s/%s", args[0], args[1])
			} else {
				util.PrintMissing("nothing to remove at %s/%s", args[0], args[1])
			}
			return nil
		},
	}
	dropCmd = &cobra.Command{
		Use:   "drop [db]",
		Short: "Deletes every key of a database and the database itself",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allRemoved, err := apiStore.DropDatabase(args[0], sessionID())
			if err != nil {
				return err
			}
			if allRemoved {
				util.PrintOK("dropped %s", args[0])
			} else {
				util.PrintMissing("%s was not removed completely", args[0])
			}
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [db] [key]",
		Short: "Prints the number of list entries (or the file size) of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := apiStore.Count(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(count)
			return nil
		},
	}
	uploadCmd = &cobra.Command{
		Use:   "upload [db] [key] [file]",
		Short: "Stores a local file under a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			mimeType, _ := cmd.Flags().GetString("type")
			created, err := apiStore.Upload(args[0], args[1], filepath.Base(args[2]), mimeType, f, sessionID())
			return reportWrite(args[0], args[1], created, err)
		},
	}
	downloadCmd = &cobra.Command{
		Use:   "download [db] [key] [file]",
		Short: "Writes the file stored under a key to a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, loaded, err := apiStore.Get(args[0], args[1], nil)
			if err != nil {
				return err
			}
			if !loaded {
				util.PrintMissing("%s/%s not found", args[0], args[1])
				return nil
			}
			rec, ok := v.AsFile()
			if !ok {
				return fmt.Errorf("%s/%s holds a %s, not a file", args[0], args[1], v.Kind())
			}
			if err := os.WriteFile(args[2], rec.Data, 0o644); err != nil {
				return err
			}
			util.PrintOK("wrote %d bytes to %s", len(rec.Data), args[2])
			return nil
		},
	}
)

func init() {
	getCmd.Flags().String("fields", "", util.WrapString("Comma-separated fields to return for objects (\"id\" is always included)"))
	getCmd.Flags().Int64("id", store.NoID, util.WrapString("Return the list entry with this id"))
	getCmd.Flags().Int("first", 0, util.WrapString("Index of the first list entry to return"))
	getCmd.Flags().Int("max", -1, util.WrapString("Maximum number of list entries to return (-1 for all)"))

	appendCmd.Flags().Int("index", store.NoIndex, util.WrapString("Insert at this position instead of the end"))
	updateCmd.Flags().Int("index", store.NoIndex, util.WrapString("Replace the list element at this position"))
	rmCmd.Flags().Int("index", store.NoIndex, util.WrapString("Remove the list element at this position"))
	rmCmd.Flags().Int64("id", store.NoID, util.WrapString("Remove the list entries with this id"))

	uploadCmd.Flags().String("type", "", util.WrapString("Mime type of the file (guessed from the extension if empty)"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func fieldsFlag(cmd *cobra.Command) []string {
	if !cmd.Flags().Changed("fields") {
		return nil
	}
	text, _ := cmd.Flags().GetString("fields")
	return value.ParseFields(text)
}

func sessionID() string {
	return viper.GetString("session-id")
}

func reportWrite(dbName, key string, created bool, err error) error {
	if err != nil {
		return err
	}
	if created {
		util.PrintOK("created %s/%s", dbName, key)
	} else {
		util.PrintOK("updated %s/%s", dbName, key)
	}
	return nil
}
