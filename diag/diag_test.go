package diag

import (
	"bytes"
	"testing"
)

func TestMessageSubstitution(t *testing.T) {
	d := Error(UndefinedFunction, StageLinking, Position{Line: 3, Column: 5}, "Foo")
	if got := d.Message(); got != "undefined function Foo" {
		t.Errorf("got %q", got)
	}
}

func TestMessageMultipleArguments(t *testing.T) {
	d := Error(TooFewArguments, StageLinking, Position{}, "Foo", "1", "2")
	if got := d.Message(); got != "too few arguments to Foo: got 1, want at least 2" {
		t.Errorf("got %q", got)
	}
}

func TestHasErrors(t *testing.T) {
	msgs := []Diagnostic{
		Warning(ExcessiveLoopNesting, StageValidation, Position{}, "4"),
	}
	if HasErrors(msgs) {
		t.Error("warnings alone must not count as errors")
	}
	msgs = append(msgs, Error(RuntimeError, StageExecution, Position{}, "bad"))
	if !HasErrors(msgs) {
		t.Error("expected HasErrors to find the Error-severity diagnostic")
	}
}

func TestFaultToDiagnostic(t *testing.T) {
	re := NewFault(DivisionByZero, Position{Line: 1, Column: 2})
	d := re.ToDiagnostic()
	if d.Severity != SeverityError || d.Stage != StageExecution || d.Code != DivisionByZero {
		t.Errorf("got %#v", d)
	}
	if re.Error() != d.Message() {
		t.Errorf("Error() and ToDiagnostic().Message() should agree")
	}
}

func TestFormatColoredWritesOneLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	FormatColored(&buf, []Diagnostic{
		Error(RuntimeError, StageExecution, Position{Line: 1, Column: 1}, "bad"),
	})
	if buf.Len() == 0 {
		t.Error("expected FormatColored to write output")
	}
}
