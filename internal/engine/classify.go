package engine

import (
	"fmt"
	"strings"
)

// Copy-tool exit code bits.
const (
	ExitFilesCopied   = 1
	ExitExtrasCleaned = 2
	ExitMismatches    = 4
	ExitCopyErrors    = 8
	ExitFatal         = 16
)

// Severity ranks the outcome of a copy-tool run.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{
	SeveritySuccess: "success",
	SeverityWarning: "warning",
	SeverityError:   "error",
	SeverityFatal:   "fatal",
}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// ParseSeverity parses a mismatch severity policy. Only success, warning
// and error are accepted; the empty string means warning.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warning", "warn":
		return SeverityWarning, nil
	case "success", "ok":
		return SeveritySuccess, nil
	case "error":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("invalid mismatch severity %q (want success, warning or error)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classification is the decoded meaning of a copy-tool exit code.
type Classification struct {
	Message       string
	Code          int
	Severity      Severity
	FilesCopied   bool
	ExtrasCleaned bool
	Mismatches    bool
	CopyErrors    bool
	Fatal         bool
	ShouldRetry   bool
}

// Classify decodes a copy-tool exit code. mismatch is the severity given to
// runs whose only problem is mismatched files. Negative codes mean the
// process was killed and are fatal.
func Classify(code int, mismatch Severity) Classification {
	if code < 0 {
		return Classification{
			Code:        code,
			Severity:    SeverityFatal,
			Fatal:       true,
			ShouldRetry: true,
			Message:     "process terminated",
		}
	}

	c := Classification{
		Code:          code,
		FilesCopied:   code&ExitFilesCopied != 0,
		ExtrasCleaned: code&ExitExtrasCleaned != 0,
		Mismatches:    code&ExitMismatches != 0,
		CopyErrors:    code&ExitCopyErrors != 0,
		Fatal:         code&ExitFatal != 0,
	}

	switch {
	case c.Fatal:
		c.Severity = SeverityFatal
	case c.CopyErrors:
		c.Severity = SeverityError
	case c.Mismatches:
		c.Severity = mismatch
	default:
		c.Severity = SeveritySuccess
	}
	c.ShouldRetry = c.Severity >= SeverityError

	switch {
	case c.Fatal:
		c.Message = "fatal error"
	case c.CopyErrors:
		c.Message = "some files could not be copied"
	case c.ExtrasCleaned:
		c.Message = "extra files cleaned"
	case c.Mismatches:
		c.Message = "mismatched files detected"
	case c.FilesCopied:
		c.Message = "files copied successfully"
	default:
		c.Message = "no changes needed"
	}
	return c
}
