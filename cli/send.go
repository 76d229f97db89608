package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/frame"
)

func newSendCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "send <peer> <message>...",
		Short: "Send one message to a peer by name or id",
		Long: `Scan for <peer> (a device name or id), connect, send the message and
disconnect. With --json the message must be a JSON document and is sent
as structured data.`,
		Example: `  cowshake send Bella "Hello from Daisy!"
  cowshake send Bella --json '{"cmd":"milk","litres":12}'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(strings.Join(args[1:], " "), asJSON)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runSend(ctx, cfg, console(cmd.OutOrStdout()), args[0], payload)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Send the message as structured JSON")
	return cmd
}

// buildPayload validates --json input up front so nothing is sent on a typo
func buildPayload(text string, asJSON bool) (interface{}, error) {
	if !asJSON {
		return text, nil
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("--json: %q is not valid JSON", text)
	}
	return json.RawMessage(text), nil
}

func runSend(ctx context.Context, c *config.Config, out io.Writer, peer string, payload interface{}) error {
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
	dev, err := connectTo(ctx, out, ep, ch, peer)
	if err != nil {
		return err
	}
	defer ep.Disconnect(dev.ID)

	if err := ep.Send(ctx, payload, ""); err != nil {
		return err
	}

	text, _ := frame.Marshal(payload)
	n := len(frame.Encode(text))
	fmt.Fprintf(out, "%s %s %s\n", okFmt(">"), text, dimFmt(fmt.Sprintf("(%d chunks)", n)))
	return nil
}
