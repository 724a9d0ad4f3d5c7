// Package naming derives file and object names from human readable labels.
// Every producer and consumer of report filenames goes through this package.
package naming

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxLabelLength caps sanitized labels.
const MaxLabelLength = 200

var (
	reservedChars = regexp.MustCompile(`[<>"/\\|?*]`)
	dashRuns      = regexp.MustCompile(`[-\s]+`)
)

// SanitizeLabel turns a label such as "BOPS: Sprint 11" into a name that is
// safe on every common filesystem and object store ("BOPS-Sprint-11").
// Parameters:
//   - label: raw human readable label.
//
// Returns:
//   - string: sanitized name, "untitled" for empty input and "report" when
//     nothing survives sanitization.
func SanitizeLabel(label string) string {
	if label == "" {
		return "untitled"
	}

	decomposed := norm.NFKD.String(label)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		// ASCII fold drops combining marks left by NFKD; control chars go too.
		if r < 32 || r >= 127 {
			continue
		}
		b.WriteRune(r)
	}
	name := b.String()

	name = strings.ReplaceAll(name, ":", "-")
	name = reservedChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	name = dashRuns.ReplaceAllString(name, "-")

	if len(name) > MaxLabelLength {
		name = strings.TrimRight(name[:MaxLabelLength], "-_")
	}
	if name == "" {
		return "report"
	}
	return name
}

// ReportFilename returns the download filename for a sprint report.
func ReportFilename(sprintName, sprintRef string) string {
	return SanitizeLabel(sprintName) + "_" + SanitizeLabel(sprintRef) + ".pdf"
}

// ArtifactKey returns the object storage key for a job's rendered report.
func ArtifactKey(jobID, sprintName, sprintRef string) string {
	return path.Join("reports", SanitizeLabel(jobID), ReportFilename(sprintName, sprintRef))
}

// FilenameFromKey returns the last path element of an artifact key.
func FilenameFromKey(key string) string {
	return path.Base(key)
}
