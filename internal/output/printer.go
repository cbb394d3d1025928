package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// ConsolePrinter writes digests to stdout in a formatted table. It backs
// dry runs.
type ConsolePrinter struct {
	w io.Writer
}

func NewConsolePrinter() *ConsolePrinter {
	return &ConsolePrinter{w: os.Stdout}
}

// NewConsolePrinterTo writes to w instead of stdout.
func NewConsolePrinterTo(w io.Writer) *ConsolePrinter {
	return &ConsolePrinter{w: w}
}

func (cp *ConsolePrinter) Send(_ context.Context, msg Message) error {
	fmt.Fprintf(cp.w, "== %s -> %s\n", msg.Subject, msg.Recipient)
	if len(msg.Listings) == 0 {
		fmt.Fprintln(cp.w, "Keine neuen Angebote.")
		return nil
	}

	w := tabwriter.NewWriter(cp.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUELLE\tTITEL\tPREIS\tDETAILS\tURL")
	fmt.Fprintln(w, "------\t-----\t-----\t-------\t---")
	for _, l := range msg.Listings {
		fmt.Fprintf(w, "%s\t%s\t%d €\t%s\t%s\n",
			l.Provider, l.Title, l.Price, facts(l), l.SourceURL)
	}
	return w.Flush()
}
