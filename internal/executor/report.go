package executor

import (
	"encoding/xml"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// reportFileName is the XUnit-style report both runtimes leave in the
// workspace: pytest writes it natively, the groovy wrapper assembles it.
const reportFileName = "results.xml"

// xunit report model. The root element may be <testsuites> or a bare
// <testsuite> depending on the producer.
type xunitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []xunitSuite `xml:"testsuite"`
}

type xunitSuite struct {
	XMLName xml.Name    `xml:"testsuite"`
	Name    string      `xml:"name,attr"`
	Cases   []xunitCase `xml:"testcase"`
}

type xunitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Failure   *xunitVerdict `xml:"failure"`
	Error     *xunitVerdict `xml:"error"`
	Skipped   *xunitVerdict `xml:"skipped"`
}

type xunitVerdict struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Expected string `xml:"expected,attr"`
	Actual   string `xml:"actual,attr"`
	Text     string `xml:",chardata"`
}

// parseReport converts an XUnit-style XML report into classified outcomes,
// preserving the report's internal test order. A passing case is matched, a
// captured assertion failure is mismatched, and errors or skips are unknown.
func parseReport(data []byte) ([]schema.TestOutcome, error) {
	cases, err := collectCases(data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "malformed test report: %v", err).WithCause(err)
	}

	outcomes := make([]schema.TestOutcome, 0, len(cases))
	for _, tc := range cases {
		name := tc.Name
		if tc.ClassName != "" {
			name = tc.ClassName + "." + tc.Name
		}

		switch {
		case tc.Failure != nil:
			outcomes = append(outcomes, schema.TestOutcome{
				TestName: name,
				Status:   schema.StatusMismatched,
				Expected: tc.Failure.Expected,
				Actual:   tc.Failure.Actual,
				Details:  verdictMessage(tc.Failure),
			})
		case tc.Error != nil:
			outcomes = append(outcomes, schema.TestOutcome{
				TestName: name,
				Status:   schema.StatusUnknown,
				Details:  verdictMessage(tc.Error),
			})
		case tc.Skipped != nil:
			outcomes = append(outcomes, schema.TestOutcome{
				TestName: name,
				Status:   schema.StatusUnknown,
				Details:  "test skipped: " + verdictMessage(tc.Skipped),
			})
		default:
			outcomes = append(outcomes, schema.TestOutcome{
				TestName: name,
				Status:   schema.StatusMatched,
				Details:  "test passed",
			})
		}
	}
	return outcomes, nil
}

func collectCases(data []byte) ([]xunitCase, error) {
	var multi xunitSuites
	if err := xml.Unmarshal(data, &multi); err == nil {
		var cases []xunitCase
		for _, s := range multi.Suites {
			cases = append(cases, s.Cases...)
		}
		return cases, nil
	}

	var single xunitSuite
	if err := xml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return single.Cases, nil
}

func verdictMessage(v *xunitVerdict) string {
	if v.Message != "" {
		return v.Message
	}
	return v.Text
}
