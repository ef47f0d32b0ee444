package whisper

import (
	"fmt"
	"math"
	"strings"
)

// Timestamped renders the transcript as one "[hh:mm:ss.mmm --> hh:mm:ss.mmm]"
// line per segment, the same layout whisper.cpp prints on its console. It
// falls back to the plain text when no segment data is available.
func (t *Transcript) Timestamped() string {
	if t == nil {
		return ""
	}
	if len(t.Segments) == 0 {
		return t.Text
	}

	var b strings.Builder
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s --> %s]  %s\n", formatOffset(seg.Start), formatOffset(seg.End), strings.TrimSpace(seg.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms%3600000/60000, ms%60000/1000, ms%1000)
}
