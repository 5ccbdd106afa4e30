package ontology

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	sectionSuffixRe = regexp.MustCompile(`SECTION\s+(\d+[A-Z]*)\s+IPC`)
	compactIPCRe    = regexp.MustCompile(`IPC(\d+)`)
	compactPOCSORe  = regexp.MustCompile(`POCSO(\d+)`)
)

// NormalizeSection canonicalises a statutory section reference so that the
// many spellings found in judgments compare equal:
//
//	"  section 376  ipc " → "IPC 376"
//	"IPC376"              → "IPC 376"
//	"POCSO4"              → "POCSO 4"
func NormalizeSection(section string) string {
	s := strings.ToUpper(strings.TrimSpace(section))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = sectionSuffixRe.ReplaceAllString(s, "IPC $1")
	s = compactIPCRe.ReplaceAllString(s, "IPC $1")
	s = compactPOCSORe.ReplaceAllString(s, "POCSO $1")
	return s
}

// normalizeTerm prepares an example term for case-insensitive substring
// matching.
func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

//Personal.AI order the ending
