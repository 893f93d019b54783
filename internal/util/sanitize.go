package util

import (
	"path/filepath"
	"strings"
)

// SanitizeFilename strips any directory components and control characters
// from a client-supplied filename before it is stored on a job record.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(name)
	// filepath.Base of an empty or separator-only name yields "." or "/"
	if name == "." || name == "/" || name == "\\" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
