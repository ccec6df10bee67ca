// Command mangeomic is the desktop side of MangeoMic: it pairs with the phone
// app on the local network and plays the phone's microphone into a virtual
// PulseAudio source.
//
// Usage:
//
//	mangeomic run              # interactive terminal dashboard
//	mangeomic run --headless   # log-only, streams as soon as a phone pairs
//	mangeomic check-sink       # provision and verify the virtual microphone
//	mangeomic version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "mangeomic",
		Short:         "Use a phone on the LAN as this machine's microphone",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file path")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "write logs to this file")
	root.PersistentFlags().String("sink", "", "audio sink: pulse or null")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log_file", root.PersistentFlags().Lookup("log-file"))
	_ = v.BindPFlag("sink", root.PersistentFlags().Lookup("sink"))

	root.AddCommand(newRunCmd(v))
	root.AddCommand(newCheckSinkCmd(v))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mangeomic %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", buildDate)
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
