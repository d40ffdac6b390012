package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-meshdfu/bootloader"
	"github.com/moffa90/go-meshdfu/dfu"
	"github.com/moffa90/go-meshdfu/internal/mlog"
	"github.com/moffa90/go-meshdfu/sim"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "meshboot",
		Short: "Mesh DFU bootloader harness",
		Long: `Mesh DFU bootloader harness

Boots the bootloader entry sequence on simulated hardware, replays mesh
advertisements into the receive dispatcher and prints every packet that
reached the DFU receive entry point.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.HiddenDefaultCmd = true

	root.AddCommand(cmdRun())
	root.AddCommand(cmdVector())
	return root
}

func cmdRun() *cobra.Command {
	var (
		level   string
		format  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run SCENARIO-FILE",
		Short: "Boot on simulated hardware and replay a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := sim.LoadScenario(args[0])
			if err != nil {
				return err
			}

			mlog.SetOutputTypes(mlog.CoreConfig{
				OutputType: "console",
				OutputPath: "stderr",
				Level:      level,
				EncodeType: format,
			})
			logger := mlog.New("meshboot")
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := sim.Run(ctx, sc,
				bootloader.WithLogger(logger),
				bootloader.WithStageCallback(func(p bootloader.Progress) {
					logger.Info("stage complete",
						"stage", string(p.Stage),
						"step", fmt.Sprintf("%d/%d", p.Step, p.TotalSteps),
						"elapsed", p.ElapsedTime.String(),
					)
				}),
			)
			if err != nil {
				return errors.Wrap(err, "run scenario")
			}

			printCalls(cmd.OutOrStdout(), res.Calls)
			fmt.Fprintf(cmd.OutOrStdout(), "delivered=%d forwarded=%d dropped=%d\n",
				res.Delivered, res.Stats.Forwarded, res.Stats.Dropped)
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "log-level", "info", "Log level (debug, info, error)")
	cmd.Flags().StringVar(&format, "log-format", "console", "Log encoding (console, json)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Abort the boot after this long")
	return cmd
}

func cmdVector() *cobra.Command {
	var startLength int

	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Print the injected bootstrap packets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seq := bootloader.BootstrapSequence()
			for i, inj := range seq {
				length := inj.Length
				if inj.Packet.Type() == dfu.TypeData && startLength > 0 {
					length = startLength
				}

				buf, err := dfu.EncodeTo(inj.Packet, length)
				if err != nil {
					return errors.Wrapf(err, "packet %d", i)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %-5s len=%-2d %s\n",
					i, inj.Packet.Type(), length, hex.EncodeToString(buf))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&startLength, "start-length", 0, "Declared DATA/START length (default: as injected)")
	return cmd
}

func printCalls(w io.Writer, calls []sim.RxCall) {
	for i, c := range calls {
		desc := "undecodable"
		if c.DecodeErr == nil {
			desc = fmt.Sprintf("%s %+v", c.Packet.Type(), c.Packet)
		}
		fmt.Fprintf(w, "rx[%d] len=%d %s\n", i, c.Length(), desc)
	}
}
