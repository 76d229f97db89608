package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/Mteixeira88/cow-shake/events"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	infoFmt = color.New(color.FgYellow).SprintFunc()
	nameFmt = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
)

// printEvent renders one bus event as a console line
func printEvent(w io.Writer, e events.Event) {
	ts := dimFmt(e.Timestamp.Format(time.TimeOnly))
	switch e.Type {
	case events.NewDevice:
		fmt.Fprintf(w, "%s %s %s %s\n", ts, infoFmt("found"), nameFmt(e.Device.Name), dimFmt(e.Device.ID))
	case events.ConnectionSuccess:
		fmt.Fprintf(w, "%s %s %s\n", ts, okFmt("connected"), nameFmt(deviceLabel(e)))
	case events.ConnectionFailure:
		fmt.Fprintf(w, "%s %s %s\n", ts, errFmt("connection failed"), nameFmt(deviceLabel(e)))
	case events.ReceivedRequest:
		fmt.Fprintf(w, "%s %s %s\n", ts, okFmt("<"), payloadText(e))
	}
}

func deviceLabel(e events.Event) string {
	if e.Device == nil {
		return "?"
	}
	if e.Device.Name != "" {
		return e.Device.Name
	}
	return e.Device.ID
}

func payloadText(e events.Event) string {
	if e.Payload == nil {
		return ""
	}
	if e.Payload.IsStructured() {
		return infoFmt("json ") + e.Payload.Text
	}
	return e.Payload.Text
}

func outputJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(w io.Writer, data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// lockedWriter serialises console writes coming from session goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func console(w io.Writer) io.Writer {
	if lw, ok := w.(*lockedWriter); ok {
		return lw
	}
	return &lockedWriter{w: w}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
