package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tinytelemetry/lotus-live/internal/socketrpc"
)

// listInstruments prints every instrument of a running daemon, one per line.
func listInstruments(w io.Writer, socketPath string) error {
	client, err := socketrpc.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("is lotus-live running? %w", err)
	}
	defer client.Close()

	statuses, err := client.ListInstruments()
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(w, "no instruments")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ANCHOR\tKIND\tLOCATION\tSTATUS")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%s\n", s.Anchor, s.Kind, s.Location.Source, s.Location.Line, s.Render())
	}
	return tw.Flush()
}
