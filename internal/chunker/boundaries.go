package chunker

import "regexp"

// A BoundaryDetector recognizes lines that open a new semantic region for one
// language family. Detectors are plain data: a named pattern set plus the
// language tags it serves. Unrecognized languages fall back to the generic
// detector.
type BoundaryDetector struct {
	Family    string
	Languages []string
	patterns  []*regexp.Regexp
}

// Match reports whether line begins a new semantic region.
func (d *BoundaryDetector) Match(line string) bool {
	for _, p := range d.patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var (
	pythonDetector = &BoundaryDetector{
		Family:    "python",
		Languages: []string{"python"},
		patterns: compileAll(
			`^\s*(def|class|async def)\s+\w+`,
			`^\s*@\w+`,
			`^\s*(if|for|while|try|with|except|finally|else|elif)\s+`,
			`^\s*#\s*.*$`,
		),
	}

	cStyleDetector = &BoundaryDetector{
		Family:    "cstyle",
		Languages: []string{"javascript", "typescript", "jsx", "tsx"},
		patterns: compileAll(
			`^\s*(function|const|let|var|class)\s+\w+`,
			`^\s*(if|for|while|try|catch|finally|else)\s+`,
			`^\s*//\s*.*$`,
			`^\s*/\*.*\*/\s*$`,
		),
	}

	genericDetector = &BoundaryDetector{
		Family: "generic",
		patterns: compileAll(
			`^\s*\w+\s+\w+\s*[({]`,
			`^\s*(if|for|while|try|catch)\s+`,
			`^\s*//\s*.*$`,
			`^\s*#\s*.*$`,
		),
	}

	detectorsByLanguage = indexDetectors(pythonDetector, cStyleDetector)
)

func indexDetectors(detectors ...*BoundaryDetector) map[string]*BoundaryDetector {
	idx := make(map[string]*BoundaryDetector)
	for _, d := range detectors {
		for _, lang := range d.Languages {
			idx[lang] = d
		}
	}
	return idx
}

// DetectorFor returns the boundary detector registered for language, or the
// generic fallback when none is.
func DetectorFor(language string) *BoundaryDetector {
	if d, ok := detectorsByLanguage[language]; ok {
		return d
	}
	return genericDetector
}
