package storage

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/obsidian-mcp/internal/apperr"
)

// Rejection reasons, in the order ValidateName checks them.
const (
	ReasonNameRequired   = "name required"
	ReasonMustBeRelative = "must be relative"
	ReasonHiddenName     = "hidden/system names not allowed"
	ReasonNotMarkdown    = "only markdown notes allowed"
	ReasonOutsideRoot    = "must stay within vault root"
)

var windowsAbsRe = regexp.MustCompile(`^[a-zA-Z]:[\\/]`)

// systemNames are compared lower-cased against every path segment.
var systemNames = map[string]struct{}{
	".ds_store":                 {},
	"thumbs.db":                 {},
	"desktop.ini":               {},
	"icon\r":                    {},
	"$recycle.bin":              {},
	"system volume information": {},
}

// ValidateName applies the note naming policy to a caller-supplied relative
// name. It performs no I/O and reports the first failing rule as an
// *apperr.ValidationError.
func (f *FS) ValidateName(name string) error {
	reject := func(reason string) error {
		return &apperr.ValidationError{Name: name, Reason: reason}
	}

	if strings.TrimSpace(name) == "" {
		return reject(ReasonNameRequired)
	}
	if isAbsolute(name) {
		return reject(ReasonMustBeRelative)
	}

	cleaned := filepath.Clean(name)
	for _, seg := range splitSegments(cleaned) {
		if seg == "." || seg == ".." {
			continue
		}
		if strings.HasPrefix(seg, ".") {
			return reject(ReasonHiddenName)
		}
		if _, ok := systemNames[strings.ToLower(seg)]; ok {
			return reject(ReasonHiddenName)
		}
	}

	if ext := filepath.Ext(name); ext != ".md" && ext != ".markdown" {
		return reject(ReasonNotMarkdown)
	}

	if _, ok := withinRoot(f.root, cleaned); !ok {
		return reject(ReasonOutsideRoot)
	}
	return nil
}

// isAbsolute treats POSIX, UNC-style and drive-letter paths as absolute
// regardless of the host OS.
func isAbsolute(name string) bool {
	return filepath.IsAbs(name) ||
		strings.HasPrefix(name, "/") ||
		strings.HasPrefix(name, `\`) ||
		windowsAbsRe.MatchString(name)
}

// splitSegments splits on both separator styles so that names written for
// another OS cannot smuggle hidden segments past the check.
func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}
