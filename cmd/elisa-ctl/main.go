package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"elisa/internal/config"
	"elisa/internal/ipc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socket string
	var timeout time.Duration

	send := func(msg ipc.ControlMessage) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ipc.SendCommand(ctx, socket, msg); err != nil {
			return fmt.Errorf("elisa not reachable: %w", err)
		}
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           "elisa-ctl",
		Short:         "Control a running ELISA daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&socket, "socket", "s", envOr("ELISA_SOCKET", config.DefaultSocket), "Control socket path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", ipc.DefaultTimeout, "Request timeout")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "record",
			Short: "Start a voice recording",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(ipc.ControlMessage{Cmd: ipc.CmdRecord})
			},
		},
		&cobra.Command{
			Use:   "text [message...]",
			Short: "Send a typed message",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(ipc.ControlMessage{Cmd: ipc.CmdText, Arg: strings.Join(args, " ")})
			},
		},
		&cobra.Command{
			Use:   "file [path]",
			Short: "Transcribe an audio file as if it was recorded",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("invalid path: %w", err)
				}
				return send(ipc.ControlMessage{Cmd: ipc.CmdFile, Arg: path})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Clear the conversation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(ipc.ControlMessage{Cmd: ipc.CmdClear})
			},
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Stop the current recording, reply and playback",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(ipc.ControlMessage{Cmd: ipc.CmdCancel})
			},
		},
	)

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
