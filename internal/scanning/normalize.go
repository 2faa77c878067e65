package scanning

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^\s*[_\-=]{3,}\s*$`)
	// tesseract's chi_sim model splits CJK runs with single spaces
	reCJKGap = regexp.MustCompile(`(\p{Han}) (\p{Han})`)
)

// Normalize collapses noisy whitespace in recognized text.
// Line breaks are kept since field values end at the line break.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// joinCJKGaps removes the single spaces tesseract puts between Han characters.
// Vision model output is left alone; its spaces are real.
func joinCJKGaps(s string) string {
	// twice, since matches overlap on the shared character
	s = reCJKGap.ReplaceAllString(s, "$1$2")
	return reCJKGap.ReplaceAllString(s, "$1$2")
}
