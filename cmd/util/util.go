package util

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sphagnumdb/sphagnum/lib/ring"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
	"github.com/sphagnumdb/sphagnum/rpc/transport/http"
	"github.com/sphagnumdb/sphagnum/rpc/transport/tcp"
	"github.com/sphagnumdb/sphagnum/rpc/transport/unix"
)

const (
	// Version of SphagnumDB
	Version = "0.3.0"

	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (SPHAGNUM_<FLAG>)
	EnvPrefix = "sphagnum"
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

// InitConfig loads the .env files and makes viper read SPHAGNUM_ environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SplitList splits a comma separated flag value, dropping empty entries
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Client side
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The RPC address of a Seed. Any Seed routes requests to the Field owning the key. Multiple endpoints can be given as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds, negative keeps the OS default (tcp only)"))

	key = "field"
	cmd.PersistentFlags().String(key, "", WrapString("Address the Field with this name directly instead of letting the Seed route (requests for keys of other Fields fail with Misrouted)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              SplitList(viper.GetString("transport-endpoints")),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}
}

// GetShardID returns the shard id requests are sent to: the Field given with
// --field, or the routed shard id
func GetShardID() uint64 {
	if field := viper.GetString("field"); field != "" {
		return ring.FieldID(field)
	}
	return ring.RoutedShardID
}

// --------------------------------------------------------------------------
// Serializer and transports
// --------------------------------------------------------------------------

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetTransportFactory returns a constructor for client transports based on configuration
func GetTransportFactory() (func() transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport, nil
	case "tcp":
		return tcp.NewTCPClientTransport, nil
	case "unix":
		return unix.NewUnixClientTransport, nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetTransport creates a client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	factory, err := GetTransportFactory()
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// Connect creates a client for the Seed configured by the RPC client flags of cmd
func Connect(cmd *cobra.Command) (*client.Client, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := GetTransport()
	if err != nil {
		return nil, err
	}

	c, err := client.NewClient(*GetClientConfig(), t, s)
	if err != nil {
		return nil, err
	}
	return c.WithShard(GetShardID()), nil
}
