// deskroute - IT helpdesk classification and agent-routing server
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var logLevelFlag string

var rootCmd = &cobra.Command{
	Use:   "deskroute",
	Short: "deskroute - IT helpdesk classification and agent routing",
	Long: `deskroute classifies employee support messages into hardware, software,
password or general issues and routes each conversation to a specialist agent
over chat, telephony, Teams and WebSocket channels.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level (debug, info, warn, error). Overrides LOG_LEVEL.")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger installs a JSON slog handler as the default logger. The
// --log-level flag wins over the configured level.
func setupLogger(fallback slog.Level) *slog.Logger {
	level := fallback
	if logLevelFlag != "" {
		if err := level.UnmarshalText([]byte(logLevelFlag)); err != nil {
			level = fallback
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
