package executor

import (
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// Runtime describes how one scripting runtime is invoked inside a workspace.
// Both supported runtimes run as child processes with the target base URL in
// the environment and leave an XUnit-style report in the workspace.
type Runtime struct {
	// Binary is the executable resolved via PATH; an absent binary makes
	// every script for this runtime an unknown outcome, never a batch abort.
	Binary string
	// ScriptFile is the workspace file the script content is written to.
	ScriptFile string
	// Args is the full argument list after the binary name.
	Args []string
	// Prepare writes any support files the runtime needs (config, report
	// wrapper) into the workspace.
	Prepare func(w *workspace) error
}

const pytestINI = `[pytest]
junit_family = xunit2
addopts = --junitxml=results.xml
`

// groovyCollector wraps a groovy test script: groovy has no native
// structured reporter, so this wrapper evaluates the script, records
// assertion failures, and writes the XUnit report itself.
const groovyCollector = `import groovy.xml.MarkupBuilder

def results = [:]
def failure = null
try {
    evaluate(new File("test_execution.groovy"))
    results["script"] = [status: "PASSED", message: "script completed"]
} catch (AssertionError e) {
    failure = e
    results["script"] = [status: "FAILED", message: e.message ?: "assertion failed"]
} catch (Exception e) {
    results["script"] = [status: "ERROR", message: "${e.class.name}: ${e.message}"]
}

def writer = new StringWriter()
def xml = new MarkupBuilder(writer)
def failures = results.count { it.value.status == "FAILED" }
def errors = results.count { it.value.status == "ERROR" }
xml.testsuite(name: "groovy-tests", tests: results.size(), failures: failures, errors: errors) {
    results.each { testName, result ->
        testcase(name: testName, classname: "GroovyTest") {
            if (result.status == "FAILED") {
                xml.failure(message: result.message, type: "AssertionError")
            } else if (result.status == "ERROR") {
                xml.error(message: result.message, type: "Exception")
            }
        }
    }
}
new File("results.xml").text = writer.toString()
if (failure != null) {
    System.exit(1)
}
`

// defaultRuntimes wires the two supported runtimes: python scripts run under
// pytest with its native JUnit XML reporter, groovy scripts run through the
// collector wrapper.
func defaultRuntimes() map[schema.ScriptRuntime]Runtime {
	return map[schema.ScriptRuntime]Runtime{
		schema.RuntimePython: {
			Binary:     "python3",
			ScriptFile: "test_execution.py",
			Args:       []string{"-m", "pytest", "test_execution.py", "-v", "--junitxml=results.xml"},
			Prepare: func(w *workspace) error {
				return w.WriteFile("pytest.ini", pytestINI)
			},
		},
		schema.RuntimeGroovy: {
			Binary:     "groovy",
			ScriptFile: "test_execution.groovy",
			Args:       []string{"collect_results.groovy"},
			Prepare: func(w *workspace) error {
				return w.WriteFile("collect_results.groovy", groovyCollector)
			},
		},
	}
}
