package schema

import "time"

// ScriptRuntime identifies which scripting runtime a generated test script
// targets. Both runtimes run as isolated child processes and yield an
// XUnit-style structured report.
type ScriptRuntime string

const (
	// RuntimePython scripts are executed through pytest, which emits a
	// native JUnit XML report.
	RuntimePython ScriptRuntime = "python"
	// RuntimeGroovy scripts have no native structured reporter; a wrapper
	// collector script assembles the XML report.
	RuntimeGroovy ScriptRuntime = "groovy"
)

// TestScript is a verified, ready-to-run test script produced by the
// (external) script generation stage.
type TestScript struct {
	SequenceID string        `json:"operation_sequence_id"`
	Runtime    ScriptRuntime `json:"runtime"`
	Content    string        `json:"content"`
	VerifiedAt time.Time     `json:"verified_at,omitempty"`
}

// TestStatus classifies a single test outcome.
type TestStatus string

const (
	StatusMatched    TestStatus = "matched"
	StatusMismatched TestStatus = "mismatched"
	StatusUnknown    TestStatus = "unknown"
)

// TestOutcome is the classified result of one test case.
type TestOutcome struct {
	TestName string     `json:"test_name"`
	Status   TestStatus `json:"status"`
	Expected string     `json:"expected,omitempty"`
	Actual   string     `json:"actual,omitempty"`
	Details  string     `json:"details,omitempty"`
}

// TestResults is the immutable suite of outcomes from one executor run.
type TestResults struct {
	SuiteID    string        `json:"suite_id"`
	Outcomes   []TestOutcome `json:"outcomes"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// RecordedExchange is a minimal execution trace entry used for dynamic
// invariant mining.
type RecordedExchange struct {
	URL        string     `json:"url"` // path portion, e.g. /v1/charges/ch_1
	Method     HTTPMethod `json:"method"`
	StatusCode int        `json:"status_code"`
	Body       any        `json:"body"`
	Timestamp  time.Time  `json:"timestamp"`
}

// DataSetKind marks a test data file as targeting success or error responses.
type DataSetKind string

const (
	DataSetValid   DataSetKind = "valid"
	DataSetInvalid DataSetKind = "invalid"
)

// TestDataItem is one payload plus the status code it is expected to produce.
type TestDataItem struct {
	Data         any `json:"data"`
	ExpectedCode int `json:"expected_code"`
}

// TestDataFile groups generated test data for one operation.
type TestDataFile struct {
	OperationID string         `json:"operation_id"`
	Kind        DataSetKind    `json:"kind"`
	Items       []TestDataItem `json:"items"`
	Path        string         `json:"path"`
}

// PromptTemplate is an adjustable, versioned prompt/template record held in
// the reinforcement store.
type PromptTemplate struct {
	Name         string `json:"name"`
	TemplateText string `json:"template_text"`
	Version      string `json:"version"`
}

// EdgeWeight is the persisted weight of one ODG edge, biased by accumulated
// outcomes. Default weight is 1.0.
type EdgeWeight struct {
	Src         string    `json:"src_operation"`
	Dst         string    `json:"dst_operation"`
	Weight      float64   `json:"weight"`
	Successes   int       `json:"successful_uses"`
	Failures    int       `json:"failed_uses"`
	LastUpdated time.Time `json:"last_updated"`
}

// ReinforcementUpdate is the output of one reinforcement pass.
type ReinforcementUpdate struct {
	RefinedPrompts []PromptTemplate   `json:"refined_prompts"`
	UpdatedWeights map[string]float64 `json:"updated_odg_weights,omitempty"` // "src->dst" → weight
}
