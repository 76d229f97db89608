package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/events"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <peer>",
		Short: "Interactive two-way chat with a peer",
		Long: `Advertise the service, connect to <peer> and send every line typed on
stdin to it. Messages from the peer are printed as they arrive. Lines
starting with '{' or '[' that parse as JSON are sent as structured data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runChat(ctx, cfg, cmd.InOrStdin(), console(cmd.OutOrStdout()), args[0])
		},
	}
}

func runChat(ctx context.Context, c *config.Config, in io.Reader, out io.Writer, peer string) error {
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

	dev, err := connectTo(ctx, out, ep, ch, peer)
	if err != nil {
		return err
	}
	defer ep.Disconnect(dev.ID)
	fmt.Fprintf(out, "%s %s, type a message and press enter (Ctrl-D to quit)\n", okFmt("Chatting with"), nameFmt(dev.Name))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printEvents(ctx, out, ch)
		return nil
	})

	// not part of the group: a blocked stdin read must not hold up shutdown
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		// stdin closing ends the chat
		defer unsub()
		for {
			var line string
			select {
			case <-ctx.Done():
				return nil
			case l, ok := <-lines:
				if !ok {
					return nil
				}
				line = strings.TrimSpace(l)
			}
			if line == "" {
				continue
			}
			payload, err := buildPayload(line, looksLikeJSON(line))
			if err != nil {
				payload = line
			}
			if err := ep.Send(ctx, payload, ""); err != nil {
				// already reported through the alert hook
				continue
			}
			fmt.Fprintf(out, "%s %s\n", okFmt(">"), line)
		}
	})
	return g.Wait()
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
