package textutil

import (
	"regexp"
	"strings"
)

var (
	fencePattern      = regexp.MustCompile("^\\s*(```|~~~)")
	headingPattern    = regexp.MustCompile(`^\s{0,3}#{1,6}\s*`)
	bulletPattern     = regexp.MustCompile(`^\s*(?:[-*+•]|\d{1,3}[.)])\s+`)
	quotePattern      = regexp.MustCompile(`^\s*>+\s?`)
	rulePattern       = regexp.MustCompile(`^\s*(?:[-*_]\s*){3,}$`)
	imagePattern      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	inlineCodePattern = regexp.MustCompile("`([^`]*)`")
	strongPattern     = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	emphasisPattern   = regexp.MustCompile(`(^|[\s(])[*_]([^*_\s][^*_]*?)[*_]([\s).,!?;:]|$)`)
	leftoverPattern   = regexp.MustCompile("[*_`#|]+")
	spacePattern      = regexp.MustCompile(`\s+`)
)

// StripMarkdown flattens markdown into plain prose. Headings, list bullets,
// quotes, fences and emphasis markers are removed, links keep their text and
// lines are joined with single spaces. Heading and list lines without a
// sentence stop get a period so the result still reads as sentences.
func StripMarkdown(text string) string {
	var parts []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if fencePattern.MatchString(line) || rulePattern.MatchString(line) {
			continue
		}
		structural := headingPattern.MatchString(line) || bulletPattern.MatchString(line)
		line = headingPattern.ReplaceAllString(line, "")
		line = bulletPattern.ReplaceAllString(line, "")
		line = quotePattern.ReplaceAllString(line, "")
		line = imagePattern.ReplaceAllString(line, "$1")
		line = linkPattern.ReplaceAllString(line, "$1")
		line = inlineCodePattern.ReplaceAllString(line, "$1")
		line = strongPattern.ReplaceAllString(line, "$2")
		line = emphasisPattern.ReplaceAllString(line, "$1$2$3")
		line = leftoverPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		if structural && !strings.ContainsAny(line[len(line)-1:], ".!?:;") {
			line += "."
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
