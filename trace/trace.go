// Package trace reads valgrind-style memory access traces. Each record
// is one line of the form "op address,size" with the address in hex,
// such as "L 10,4" or "S 7ff0005c8,8".
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// An Op tells whether an access reads or writes memory.
type Op byte

const (
	// OpLoad is a data read.
	OpLoad Op = 'L'

	// OpStore is a data write.
	OpStore Op = 'S'
)

// An Access is one parsed trace record.
type Access struct {
	Op   Op
	Addr uint64
	Size uint64
}

// A Reader produces the accesses of a trace one record at a time.
type Reader struct {
	scanner *bufio.Scanner
	lineNum int
}

// NewReader returns a reader that parses the trace text from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next access in the trace, or io.EOF after the last
// record. Instruction-fetch lines and blank lines carry no data access
// and are skipped.
func (r *Reader) Next() (Access, error) {
	for r.scanner.Scan() {
		r.lineNum++

		acc, ok, err := ParseLine(r.scanner.Text())
		if err != nil {
			return Access{}, fmt.Errorf("line %d: %w", r.lineNum, err)
		}

		if !ok {
			continue
		}

		return acc, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Access{}, err
	}

	return Access{}, io.EOF
}

// ParseLine parses one trace line. The ok result is false for lines that
// carry no data access.
func ParseLine(line string) (acc Access, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] == 'I' {
		return Access{}, false, nil
	}

	op := Op(trimmed[0])
	if op != OpLoad && op != OpStore {
		return Access{}, false,
			fmt.Errorf("unknown operation %q", string(trimmed[0]))
	}

	rest := strings.TrimSpace(trimmed[1:])
	addrField, sizeField, found := strings.Cut(rest, ",")
	if !found {
		return Access{}, false, errors.New("missing size field")
	}

	addr, err := strconv.ParseUint(strings.TrimSpace(addrField), 16, 64)
	if err != nil {
		return Access{}, false, fmt.Errorf("bad address: %w", err)
	}

	size, err := strconv.ParseUint(strings.TrimSpace(sizeField), 10, 64)
	if err != nil {
		return Access{}, false, fmt.Errorf("bad size: %w", err)
	}

	return Access{Op: op, Addr: addr, Size: size}, true, nil
}
