package render

// WrapWords greedily wraps words into lines no wider than maxWidth, using
// the supplied measure function, and caps the result at MaxCaptionLines.
// Words past the cap are dropped, matching the reveal contract: a slide
// never shows more than three caption lines.
func WrapWords(words []string, maxWidth float64, measure func(string) float64) []string {
	var lines []string
	current := ""

	for _, word := range words {
		test := word
		if current != "" {
			test = current + " " + word
		}
		if measure(test) > maxWidth && current != "" {
			lines = append(lines, current)
			current = word
		} else {
			current = test
		}
	}
	if current != "" {
		lines = append(lines, current)
	}

	if len(lines) > MaxCaptionLines {
		lines = lines[:MaxCaptionLines]
	}
	return lines
}
