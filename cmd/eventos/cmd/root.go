package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
	callerID   string
	callerName string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "eventos",
		Short: "eventos - event access control and media lifecycle",
		Long: `eventos manages events owned by an organizer, the time-bounded edit grants
an organizer hands out, and the cover, video and carousel media attached to each event.

Every mutating command acts on behalf of the account given with --as:
- the organizer may do anything with their event
- a delegate holding a valid grant may edit descriptive fields and media
- only the organizer may change status, manage grants or delete`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (optional, uses env vars by default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")
	rootCmd.PersistentFlags().StringVar(&callerID, "as", "", "account ID the command acts as")
	rootCmd.PersistentFlags().StringVar(&callerName, "as-name", "", "display name recorded as organizer when the account has none")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(mediaCmd)
}
