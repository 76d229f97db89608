package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/events"
)

func newServeCmd() *cobra.Command {
	var eventsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Advertise the service and print incoming messages",
		Long: `Advertise the cow-shake service and print every message peers write to it.

With --events-addr, bus events are also streamed as JSON over a WebSocket
at ws://<addr>/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventsAddr == "" {
				eventsAddr = cfg.EventsAddr
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runServe(ctx, cfg, console(cmd.OutOrStdout()), eventsAddr)
		},
	}
	cmd.Flags().StringVar(&eventsAddr, "events-addr", "", "Serve a WebSocket event stream on this address (e.g. :8090)")
	return cmd
}

func runServe(ctx context.Context, c *config.Config, out io.Writer, eventsAddr string) error {
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
	if err := ep.StartServer(); err != nil {
		return err
	}
	defer ep.StopServer()

	fmt.Fprintf(out, "%s as %s, waiting for messages (Ctrl-C to stop)\n", okFmt("Serving"), nameFmt(c.DeviceName))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printEvents(ctx, out, ch)
		return nil
	})
	if eventsAddr != "" {
		g.Go(func() error {
			return serveEvents(ctx, out, eventsAddr, bus)
		})
	}
	return g.Wait()
}

// serveEvents runs the WebSocket bridge until ctx is done
func serveEvents(ctx context.Context, out io.Writer, addr string, bus *events.Bus) error {
	mux := http.NewServeMux()
	mux.Handle("/events", events.WebSocketHandler(bus))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(out, "%s ws://%s/events\n", infoFmt("Event stream on"), addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}

func printEvents(ctx context.Context, out io.Writer, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			printEvent(out, e)
		}
	}
}

// reporter prints session alerts and diagnostics
func reporter(out io.Writer) func(string, error) {
	return func(what string, err error) {
		fmt.Fprintf(out, "%s %v\n", errFmt(what+":"), err)
	}
}
