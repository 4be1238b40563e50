package supervisor

import (
	"io"
	"os"
)

// stderrTailBytes bounds how much of a failed task's stderr file is
// captured into the store, per spec.md §7's "capture stderr tail".
const stderrTailBytes = 4096

// readStderrTail reads the last stderrTailBytes of path, or "" if the
// file is missing or unreadable — the supervisor never fails a poll tick
// over a log file it cannot read.
func readStderrTail(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}

	size := info.Size()
	offset := int64(0)
	if size > stderrTailBytes {
		offset = size - stderrTailBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}

	buf, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(buf)
}
