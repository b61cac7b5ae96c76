package output

import (
	"bufio"
	"fmt"
	"io"
)

// hexdumpWidth is the number of bytes per hexdump line.
const hexdumpWidth = 16

// Hexdump writes data as tab-indented rows of 16 upper-case hex bytes, each
// followed by a space. A full final row leaves an empty indented line.
func Hexdump(w io.Writer, data []byte) error {
	bw := bufio.NewWriter(w)
	bw.WriteByte('\t')
	for i, b := range data {
		fmt.Fprintf(bw, "%.2X ", b)
		if (i+1)%hexdumpWidth == 0 {
			bw.WriteString("\n\t")
		}
	}
	bw.WriteByte('\n')
	return bw.Flush()
}
