package record

import (
	"bufio"
	"io"
	"strings"
)

// ScanLines reads r line by line without a length limit. A final line
// without '\n' is still delivered; an empty input yields nothing.
func ScanLines(r io.Reader, fn func(line string) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if ferr := fn(strings.TrimSuffix(line, "\n")); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
