package proctor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrReportWrite means the session ended but the audit report could not be persisted.
var ErrReportWrite = errors.New("failed to write violation report")

// TimestampLayout is used for the report header and unknown-user lines.
const TimestampLayout = "2006-01-02 15:04:05"

// RenderReport formats the audit report. It depends only on its arguments.
func RenderReport(flags Flags, unknown []UnknownUser, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report generated at %s\n", now.Format(TimestampLayout))
	for _, v := range flags.Active() {
		fmt.Fprintf(&b, "\n- %s", v)
	}
	if len(unknown) > 0 {
		b.WriteString("\n\nUnknown Users:")
		for _, u := range unknown {
			fmt.Fprintf(&b, "\n- Timestamp: %s", u.Timestamp.Format(TimestampLayout))
		}
	}
	return b.String()
}

// WriteReport replaces whatever is at path with report.
func WriteReport(path, report string) error {
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrReportWrite, err)
	}
	return nil
}
