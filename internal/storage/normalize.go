package storage

import "strings"

var eolReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeEOL converts CRLF and lone CR to LF and ends the content with
// exactly one newline.
func NormalizeEOL(content string) string {
	return strings.TrimRight(eolReplacer.Replace(content), "\n") + "\n"
}
