package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/events"
)

func newScanCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby devices advertising the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runScan(ctx, cfg, console(cmd.OutOrStdout()), outputFormat)
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	return cmd
}

func runScan(ctx context.Context, c *config.Config, out io.Writer, format string) error {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	ep, err := openEndpoint(c, bus, reporter(out))
	if err != nil {
		return err
	}
	defer ep.Close()

	if err := ep.Init(ctx, nil); err != nil {
		return err
	}

	done := make(chan struct{})
	if err := ep.Scan(func() { close(done) }); err != nil {
		return err
	}
	defer ep.StopScan()

	table := format == "table"
	if table {
		fmt.Fprintf(out, "%s for %v\n", infoFmt("Scanning"), c.Protocol.Timings().ScanTimeout)
	}
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			waiting = false
		case <-done:
			waiting = false
		case e := <-ch:
			if table {
				printEvent(out, e)
			}
		}
	}

	devices := ep.Devices()
	switch format {
	case "json":
		return outputJSON(out, devices)
	case "yaml":
		return outputYAML(out, devices)
	default:
		fmt.Fprintf(out, "%d device(s) found\n", len(devices))
		return nil
	}
}
