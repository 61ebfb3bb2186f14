package copytool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/filter"
)

// Summary table columns.
const (
	colTotal = iota
	colCopied
	colSkipped
	colMismatch
	colFailed
	colExtras
)

// ReadSummaryFile parses the summary at the end of a copy log. Logs written
// with a UTF-16 byte order mark are decoded; anything else is read as UTF-8.
func ReadSummaryFile(path string) (engine.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.Summary{}, err
	}
	defer f.Close()

	s, err := ParseSummary(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return engine.Summary{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// ParseSummary extracts the Files and Bytes rows of a copy summary. The
// last occurrence of each row wins. Rows that are missing or malformed
// leave their fields zero.
func ParseSummary(r io.Reader) (engine.Summary, error) {
	var s engine.Summary
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		label, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "files":
			if cols, ok := parseColumns(rest); ok {
				s.FilesCopied = cols[colCopied]
				s.FilesSkipped = cols[colSkipped]
				s.FilesFailed = cols[colFailed]
			}
		case "bytes":
			if cols, ok := parseColumns(rest); ok {
				s.BytesCopied = cols[colCopied]
			}
		}
	}
	return s, sc.Err()
}

// parseColumns reads the numeric columns of a summary row. A number may be
// followed by a unit word ("1.5 m").
func parseColumns(row string) ([]int64, bool) {
	fields := strings.Fields(row)
	cols := make([]int64, 0, colExtras+1)
	for i := 0; i < len(fields); i++ {
		num := fields[i]
		if i+1 < len(fields) && isUnitWord(fields[i+1]) {
			num += fields[i+1]
			i++
		}
		n, err := filter.ParseSize(num)
		if err != nil {
			return nil, false
		}
		cols = append(cols, n)
	}
	if len(cols) <= colFailed {
		return nil, false
	}
	return cols, true
}

func isUnitWord(w string) bool {
	switch strings.ToLower(w) {
	case "k", "m", "g", "t":
		return true
	}
	return false
}
