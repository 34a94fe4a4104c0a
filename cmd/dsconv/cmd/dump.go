package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type dumpOpts struct {
	offset int64
	length int
}

func newDumpCmd() *cobra.Command {
	opts := &dumpOpts{}
	dumpCmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "hex dump raw bytes of a file, for debugging unreadable files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd.OutOrStdout(), args[0], opts)
		},
	}
	flags := dumpCmd.Flags()
	flags.Int64Var(&opts.offset, "offset", 0, "offset in file to start dumping from")
	flags.IntVar(&opts.length, "length", 128, "number of bytes to dump")
	return dumpCmd
}

func runDump(w io.Writer, path string, opts *dumpOpts) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if opts.offset < 0 || opts.offset >= size {
		return fmt.Errorf("invalid offset %d (file size %d)", opts.offset, size)
	}
	if opts.length < 1 {
		return fmt.Errorf("invalid length %d", opts.length)
	}

	n := min(int64(opts.length), size-opts.offset)
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, opts.offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	fmt.Fprintf(w, "%d bytes at offset 0x%x of %s (size %d):\n", n, opts.offset, path, size)
	hexDump(w, buf, opts.offset)
	return nil
}

// hexDump writes 16 bytes per line: address, hex bytes in two groups of
// eight and the printable ASCII characters.
func hexDump(w io.Writer, buf []byte, base int64) {
	for i := 0; i < len(buf); i += 16 {
		line := buf[i:min(i+16, len(buf))]

		fmt.Fprintf(w, "%08x: ", base+int64(i))
		for j := 0; j < 16; j++ {
			if j < len(line) {
				fmt.Fprintf(w, "%02x ", line[j])
			} else {
				fmt.Fprint(w, "   ")
			}
			if j == 7 {
				fmt.Fprint(w, " ")
			}
		}

		fmt.Fprint(w, " |")
		for _, b := range line {
			if b < 32 || b > 126 {
				b = '.'
			}
			fmt.Fprintf(w, "%c", b)
		}
		fmt.Fprintln(w, "|")
	}
}
