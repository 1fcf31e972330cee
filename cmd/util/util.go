package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/ma99us/MikeDB/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
	// EnvPrefix prefixes every environment variable read by the commands
	EnvPrefix = "mikedb"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds MIKEDB_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupClientFlags adds the connection flags of the api client to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the MikeDB server (e.g. http://localhost:8080, /tmp/mikedb.sock)"))

	key = "api-key"
	cmd.PersistentFlags().String(key, "", WrapString("The API key sent with every request"))

	key = "session-id"
	cmd.PersistentFlags().String(key, "", WrapString("Session id reported in the change events caused by this client"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel of the client (debug, info, warn, error)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		APIKey:        viper.GetString("api-key"),
		SessionID:     viper.GetString("session-id"),
		TimeoutSecond: viper.GetInt("timeout"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// ParseValue reads a command line argument as JSON, falling back to a plain
// string for anything that is not valid JSON.
func ParseValue(arg string) value.Value {
	v, err := value.Parse([]byte(arg))
	if err != nil {
		return value.String(arg)
	}
	return v
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	keyColor  = color.New(color.FgCyan, color.Bold)
)

// PrintOK reports a successful operation
func PrintOK(format string, args ...interface{}) {
	_, _ = okColor.Fprintf(os.Stdout, format+"\n", args...)
}

// PrintMissing reports that nothing was found or changed
func PrintMissing(format string, args ...interface{}) {
	_, _ = warnColor.Fprintf(os.Stdout, format+"\n", args...)
}

// PrintValue writes a value: strings as they are, everything else as indented JSON
func PrintValue(v value.Value) error {
	if s, ok := v.AsString(); ok {
		fmt.Println(s)
		return nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}

// PrintKeyValue writes "name: text" with a highlighted name
func PrintKeyValue(name, text string) {
	fmt.Printf("%s %s\n", keyColor.Sprint(name+":"), text)
}
