// Package render turns synthesized Markdown into the distributable PDF,
// the HTML preview and the approval form.
package render

import (
	"regexp"
	"strings"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockBullet
	blockNumbered
	blockRule
	blockBlank
)

// block is one line-level element of a report.
type block struct {
	kind  blockKind
	level int // heading level, or list marker for numbered items
	text  string
	mark  string
}

var (
	numberedRe   = regexp.MustCompile(`^(\d+)[.)]\s+(.*)$`)
	inlineLinkRe = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	emphasisRe   = regexp.MustCompile("(\\*\\*|__|\\*|`)")
)

// parseBlocks splits Markdown into the line-level elements the PDF layout
// understands. Inline formatting is stripped.
func parseBlocks(md string) []block {
	var out []block
	for _, raw := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			out = append(out, block{kind: blockBlank})
		case line == "---" || line == "***" || line == "___":
			out = append(out, block{kind: blockRule})
		case strings.HasPrefix(line, "#"):
			level := len(line) - len(strings.TrimLeft(line, "#"))
			if level > 3 {
				level = 3
			}
			out = append(out, block{kind: blockHeading, level: level, text: plain(strings.TrimLeft(line, "# "))})
		case strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && len(line) > 4 && !strings.Contains(line[2:len(line)-2], "**"):
			out = append(out, block{kind: blockHeading, level: 3, text: plain(line)})
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ "):
			out = append(out, block{kind: blockBullet, text: plain(line[2:])})
		case numberedRe.MatchString(line):
			m := numberedRe.FindStringSubmatch(line)
			out = append(out, block{kind: blockNumbered, mark: m[1] + ".", text: plain(m[2])})
		case strings.HasPrefix(line, "|"):
			if strings.Trim(line, "|-: ") == "" {
				continue
			}
			cells := strings.Split(strings.Trim(line, "|"), "|")
			for i := range cells {
				cells[i] = plain(strings.TrimSpace(cells[i]))
			}
			out = append(out, block{kind: blockParagraph, text: strings.Join(cells, "  |  ")})
		default:
			out = append(out, block{kind: blockParagraph, text: plain(line)})
		}
	}
	return out
}

// plain removes inline Markdown markup, keeping link text.
func plain(s string) string {
	s = inlineLinkRe.ReplaceAllString(s, "$1")
	s = emphasisRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
