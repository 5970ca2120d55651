// Package markdown converts the markdown produced by the agent crews into plain
// text that Telegram renders without a parse mode.
//
// The conversion is a fixed sequence of regex passes (fences, inline code,
// images, links, heading/quote prefixes, emphasis, tables, lists, blank lines).
// The sequence is repeated until the text stops changing, so ToText is
// idempotent: ToText(ToText(s)) == ToText(s).
package markdown

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxPasses bounds the fixed-point loop. Every pass either shrinks the text
// or performs a one-way substitution, so real input settles in two or three.
const maxPasses = 8

var (
	fenceRE      = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\n?(.*?)\n?```")
	inlineCodeRE = regexp.MustCompile("`([^`\n]*)`")
	imageRE      = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	linkRE       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	prefixRE     = regexp.MustCompile(`(?m)^[ \t]*(?:[#>][ \t]*)+`)
	boldRE       = regexp.MustCompile(`(?s)\*\*(.+?)\*\*|__(.+?)__`)
	italicStarRE = regexp.MustCompile(`\*([^\s*][^\n*]*?)\*`)
	italicUndRE  = regexp.MustCompile(`\b_([^\n_]+?)_\b`)
	strikeRE     = regexp.MustCompile(`(?s)~~(.+?)~~`)
	bulletRE     = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedRE   = regexp.MustCompile(`(?m)^[ \t]*(\d+)\.[ \t]+`)
	trailingWSRE = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRunRE   = regexp.MustCompile(`\n{3,}`)

	// Same shapes the retrieval cleaner used for markdown tables.
	tableRowRE = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	tableSepRE = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)
	pipeRE     = regexp.MustCompile(`[ \t]*\|[ \t]*`)
)

// ToText returns md as plain text.
func ToText(md string) string {
	if md == "" {
		return ""
	}
	text := norm.NFC.String(strings.ReplaceAll(md, "\r\n", "\n"))
	for i := 0; i < maxPasses; i++ {
		next := pass(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func pass(text string) string {
	text = fenceRE.ReplaceAllString(text, "$1")
	text = inlineCodeRE.ReplaceAllString(text, "$1")

	text = imageRE.ReplaceAllStringFunc(text, func(m string) string {
		sm := imageRE.FindStringSubmatch(m)
		return strings.TrimSpace(strings.TrimSpace(sm[1]) + " (" + strings.TrimSpace(sm[2]) + ")")
	})
	text = linkRE.ReplaceAllStringFunc(text, func(m string) string {
		sm := linkRE.FindStringSubmatch(m)
		return strings.TrimSpace(sm[1]) + " (" + strings.TrimSpace(sm[2]) + ")"
	})

	text = prefixRE.ReplaceAllString(text, "")

	text = boldRE.ReplaceAllString(text, "$1$2")
	text = italicStarRE.ReplaceAllString(text, "$1")
	text = italicUndRE.ReplaceAllString(text, "$1")
	text = strikeRE.ReplaceAllString(text, "$1")

	text = flattenTables(text)

	text = bulletRE.ReplaceAllString(text, "- ")
	text = numberedRE.ReplaceAllString(text, "$1) ")

	text = trailingWSRE.ReplaceAllString(text, "")
	text = blankRunRE.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// flattenTables drops separator rows, turns table rows into space-joined
// cells, and replaces any remaining pipe with a single space.
func flattenTables(text string) string {
	if !strings.Contains(text, "|") {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		switch {
		case tableSepRE.MatchString(ln):
			continue
		case tableRowRE.MatchString(ln):
			row := strings.TrimSpace(ln)
			row = strings.TrimPrefix(row, "|")
			row = strings.TrimSuffix(row, "|")
			cells := strings.Split(row, "|")
			kept := cells[:0]
			for _, c := range cells {
				if c = strings.TrimSpace(c); c != "" {
					kept = append(kept, c)
				}
			}
			out = append(out, strings.Join(kept, " "))
		default:
			out = append(out, pipeRE.ReplaceAllString(ln, " "))
		}
	}
	return strings.Join(out, "\n")
}
