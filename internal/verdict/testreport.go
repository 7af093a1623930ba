package verdict

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// TestSummary is the parsed tester output. Failures never fail the run; they
// downgrade the result to passed-with-warnings.
type TestSummary struct {
	Pass   bool `json:"pass"`
	Failed int  `json:"failed"`
	Passed int  `json:"passed"`
	Total  int  `json:"total"`
}

var failedCountRe = regexp.MustCompile(`(?i)(\d+)\s+(?:tests? )?failed`)

// ParseTestReport extracts the failed-test count from tester output. JSON is
// preferred; a "N failed" phrase is the plain-text fallback.
func ParseTestReport(output string) TestSummary {
	if raw, ok := extractObject(output); ok {
		var s TestSummary
		if err := json.Unmarshal(raw, &s); err == nil {
			if !s.Pass && s.Failed == 0 {
				s.Failed = 1
			}
			return s
		}
	}
	if m := failedCountRe.FindStringSubmatch(output); m != nil {
		n, _ := strconv.Atoi(m[1])
		return TestSummary{Pass: n == 0, Failed: n}
	}
	return TestSummary{Pass: true}
}
