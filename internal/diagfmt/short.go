package diagfmt

import (
	"fmt"
	"io"

	"tracec/internal/diag"
	"tracec/internal/source"
)

// Short prints one line per diagnostic:
//
//	error TYP4041 prog.yaml:5:13 Map value 'hist' cannot be assigned ...
func Short(w io.Writer, bag *diag.Bag, fs *source.FileSet, includeNotes bool) error {
	out := diag.FormatLines(bag.Items(), fs, includeNotes)
	if out == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, out)
	return err
}
