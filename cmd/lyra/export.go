package main

import (
	"fmt"
	"io"

	"github.com/stupiduntilnot/lyra/internal/transcript"
)

// runExport writes the session transcript in the import format.
func runExport(a *app, out string, stdout io.Writer) error {
	if out != "" {
		if err := saveTranscript(out, a.session.Export()); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d messages to %s\n", len(a.session.Export()), out)
		return nil
	}
	data, err := transcript.Encode(a.session.Export())
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}
