package wsfuzz

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CLI represents the command-line interface for wsfuzz
type CLI struct {
	rootCmd *cobra.Command
	config  *viper.Viper
	out     io.Writer
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	cli := &CLI{
		config: viper.New(),
		out:    os.Stdout,
	}
	cli.initCommands()
	return cli
}

// Execute runs the CLI application
func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

// ExecuteContext runs the CLI application with a cancellable context
func (cli *CLI) ExecuteContext(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}

// SetOutput redirects log and version output
func (cli *CLI) SetOutput(w io.Writer) {
	cli.out = w
	cli.rootCmd.SetOut(w)
	cli.rootCmd.SetErr(w)
}

// initCommands initializes all CLI commands and flags
func (cli *CLI) initCommands() {
	cli.rootCmd = &cobra.Command{
		Use:   "wsfuzz [flags] <target>",
		Short: "WebSocket message fuzzer, results need manual analysis",
		Long: `Sends every payload of the payload file through every message of the message
file, opening a new WebSocket connection per attempt, and logs the responses.

The string ` + Placeholder + ` in a message is replaced with the payload. Lines
starting with ` + PreMessageTag + ` are sent unmodified before the next fuzzed
message on every attempt.

The target is http(s)://host[:port] or ws(s)://host[:port]; a bare host is
treated as https. With --insecure, certificate verification is disabled. It is
enabled by default when --proxy is set, since intercepting proxies present their
own certificates; pass -k=false to keep verification through a proxy.`,
		Args:         cobra.ExactArgs(1),
		RunE:         cli.runFuzz,
		SilenceUsage: true,
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cli.out, "wsfuzz version %s %s\n", Version, Platform)
		},
	}

	flags := cli.rootCmd.Flags()
	addFuzzFlags(flags)

	// Bind environment variables
	flags.Lookup("cookie").Usage += " (env: WSFUZZ_COOKIE)"
	flags.Lookup("header").Usage += " (env: WSFUZZ_HEADERS, newline separated)"
	flags.Lookup("proxy").Usage += " (env: WSFUZZ_PROXY)"
	_ = cli.config.BindEnv("cookie", "WSFUZZ_COOKIE")
	_ = cli.config.BindEnv("headers", "WSFUZZ_HEADERS")
	_ = cli.config.BindEnv("proxy", "WSFUZZ_PROXY")
	_ = cli.config.BindPFlag("cookie", flags.Lookup("cookie"))
	_ = cli.config.BindPFlag("proxy", flags.Lookup("proxy"))

	// Mark required flags
	_ = cli.rootCmd.MarkFlagRequired("fuzz-file")
	_ = cli.rootCmd.MarkFlagRequired("message-file")

	cli.rootCmd.AddCommand(versionCmd)
}

func addFuzzFlags(flags *pflag.FlagSet) {
	flags.StringP("fuzz-file", "f", "", "File with the attack payloads, one payload per line")
	flags.StringP("message-file", "m", "", "File with the WebSocket messages to fuzz, "+PreMessageTag+" lines are sent before the next message")
	flags.StringP("cookie", "c", "", "Cookie sent with the WebSocket handshake")
	flags.StringArrayP("header", "H", nil, "Custom handshake header \"Name: value\", repeatable")
	flags.StringP("proxy", "p", "", "HTTP proxy in format host:port, implies --insecure unless -k=false is given")
	flags.BoolP("insecure", "k", false, "Skip TLS certificate verification (default true with --proxy)")
	flags.IntP("timeout", "t", int(DefaultReceiveTimeout/time.Second), "Seconds to wait for further responses after each message")
	flags.Int("handshake-timeout", int(DefaultHandshakeTimeout/time.Second), "Seconds to wait for the WebSocket handshake")
	flags.StringP("url-path", "u", "/", "URL path where the protocol switch happens")
	flags.StringP("indicators", "i", strings.Join(DefaultIndicators, ","), "Comma-separated substrings that flag a response")
	flags.StringP("escape", "e", "json", "Payload escaping: "+strings.Join(EscapeNames(), ", "))
	flags.IntP("workers", "w", DefaultWorkers, "Number of message lines fuzzed in parallel")
	flags.Float64P("rate", "r", 0, "Maximum attempts per second, 0 for unlimited")
	flags.CountP("verbose", "v", "Show debug logs (use -vv for transport trace logs)")
}

func (cli *CLI) runFuzz(cmd *cobra.Command, args []string) error {
	// Get flags
	fuzzFile, _ := cmd.Flags().GetString("fuzz-file")
	messageFile, _ := cmd.Flags().GetString("message-file")
	cookie := cli.config.GetString("cookie")
	proxy := cli.config.GetString("proxy")
	headers, _ := cmd.Flags().GetStringArray("header")
	if !cmd.Flags().Changed("header") {
		headers = splitLines(cli.config.GetString("headers"))
	}
	insecure, _ := cmd.Flags().GetBool("insecure")
	if proxy != "" && !cmd.Flags().Changed("insecure") {
		insecure = true
	}
	timeout, _ := cmd.Flags().GetInt("timeout")
	handshakeTimeout, _ := cmd.Flags().GetInt("handshake-timeout")
	urlPath, _ := cmd.Flags().GetString("url-path")
	indicators, _ := cmd.Flags().GetString("indicators")
	escapeName, _ := cmd.Flags().GetString("escape")
	workers, _ := cmd.Flags().GetInt("workers")
	perSecond, _ := cmd.Flags().GetFloat64("rate")
	verbose, _ := cmd.Flags().GetCount("verbose")

	// Validate everything before touching the network
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrConfig)
	}
	if handshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", ErrConfig)
	}
	if workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrConfig)
	}
	if perSecond < 0 {
		return fmt.Errorf("%w: rate must not be negative", ErrConfig)
	}

	target, err := NewTarget(args[0], urlPath)
	if err != nil {
		return err
	}
	target.Cookie = cookie
	target.Insecure = insecure
	for _, h := range headers {
		if err := target.AddHeader(h); err != nil {
			return err
		}
	}
	if proxy != "" {
		if err := target.SetProxy(proxy); err != nil {
			return err
		}
	}

	escape, err := EscapeByName(escapeName)
	if err != nil {
		return err
	}

	set, err := LoadTemplates(messageFile)
	if err != nil {
		return err
	}
	payloads, err := LoadCorpus(fuzzFile, escape)
	if err != nil {
		return err
	}

	// Setup logging
	logger := cli.initLogging(verbose)
	setProcessTitle("wsfuzz", logger)

	opt := DefaultCampaignOption().
		WithReceiveTimeout(time.Duration(timeout) * time.Second).
		WithHandshakeTimeout(time.Duration(handshakeTimeout) * time.Second).
		WithWorkers(workers).
		WithRate(perSecond).
		WithIndicators(ParseIndicators(indicators)).
		WithLogger(logger)

	campaign := NewCampaign(target, set, payloads, opt)
	_, err = campaign.Run(cmd.Context())
	return err
}

// initLogging sets up zerolog with appropriate level
func (cli *CLI) initLogging(verbose int) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case verbose == 1:
		level = zerolog.DebugLevel
	case verbose > 1:
		level = zerolog.TraceLevel
	}

	output := zerolog.ConsoleWriter{Out: cli.out, TimeFormat: time.RFC3339}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
