package ontology

import (
	"github.com/dlclark/regexp2"

	"github.com/processlens/engine/internal/domain"
)

// Sample is one piece of input text for TestRule, shaped like the fields a
// real Event.Data carries.
type Sample struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	OCRText string `json:"ocr_text,omitempty"`
}

func (s Sample) asEventData() map[string]any {
	return map[string]any{"title": s.Title, "url": s.URL, "ocr_text": s.OCRText}
}

// TestResult reports whether one sample matched and, if so, the rendered
// name and data mapping the rule would have produced.
type TestResult struct {
	Match bool           `json:"match"`
	Name  string         `json:"name,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// TestRule dry-runs r against samples without touching the store: no
// objects are created, no match counters are bumped, nothing is persisted.
// It shares the compile/scan/match/render pipeline ExtractEvent uses so a
// rule behaves identically in the test endpoint and in production.
func TestRule(r domain.ExtractionRule, samples []Sample) ([]TestResult, error) {
	re, err := regexp2.Compile(r.Pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = DefaultMatchTimeout

	results := make([]TestResult, len(samples))
	for i, s := range samples {
		text := scanText(s.asEventData(), r.SourceFields)
		if text == "" {
			continue
		}
		matches, timedOut := findAllMatches(re, text)
		if timedOut || len(matches) == 0 {
			continue
		}
		name, ok := renderTemplate(r.NameTemplate, matches[0])
		if !ok {
			continue
		}
		results[i] = TestResult{
			Match: true,
			Name:  name,
			Data:  buildDataMapping(r.DataMapping, matches[0]),
		}
	}
	return results, nil
}
