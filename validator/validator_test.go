package validator

import (
	"testing"

	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/parser"
)

func validateSource(t *testing.T, src string) []diag.Diagnostic {
	t.Helper()
	prog, diags := parser.Parse(src)
	if diag.HasErrors(diags) {
		t.Fatalf("parse failed for %q: %v", src, diags)
	}
	return Validate(prog)
}

func codes(msgs []diag.Diagnostic) []diag.Code {
	out := make([]diag.Code, len(msgs))
	for i, m := range msgs {
		out[i] = m.Code
	}
	return out
}

func hasCode(msgs []diag.Diagnostic, code diag.Code) bool {
	for _, m := range msgs {
		if m.Code == code {
			return true
		}
	}
	return false
}

func TestValidPrograms(t *testing.T) {
	sources := []string{
		`var x = 1
x = x + 1`,
		`Data.greeting = "hi"`,
		`foreach o in Data.orders do Data.last = o end`,
		`for i = 1 to 10 do Data.n = i end`,
		`var x = 1
if x > 0 then
  var y = 2
  x = y
end`,
		`while Data.run do break end`,
		`switch Data.kind
case 1:
  break
end`,
		`var f = |a, b| a + b
Data.sum = f(1, 2)`,
	}
	for _, src := range sources {
		if msgs := validateSource(t, src); diag.HasErrors(msgs) {
			t.Errorf("expected %q to validate, got %v", src, msgs)
		}
	}
}

func TestUndeclaredVariableRead(t *testing.T) {
	msgs := validateSource(t, `Data.x = missing`)
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("expected InvalidVariableReference, got %v", codes(msgs))
	}
}

func TestUndeclaredVariableWrite(t *testing.T) {
	msgs := validateSource(t, `missing = 1`)
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("expected InvalidVariableReference, got %v", codes(msgs))
	}
}

func TestRedeclarationInSameScope(t *testing.T) {
	msgs := validateSource(t, "var x = 1\nvar x = 2")
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("expected InvalidVariableReference for redeclaration, got %v", codes(msgs))
	}
}

func TestRedeclaringBuiltin(t *testing.T) {
	msgs := validateSource(t, `var Data = 1`)
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("expected InvalidVariableReference for builtin redeclaration, got %v", codes(msgs))
	}
}

func TestShadowingInInnerScopeAllowed(t *testing.T) {
	msgs := validateSource(t, `var x = 1
if x > 0 then
  var x = 2
  Data.y = x
end`)
	if diag.HasErrors(msgs) {
		t.Errorf("inner-scope shadowing should be allowed, got %v", msgs)
	}
}

func TestInnerVariableInvisibleOutside(t *testing.T) {
	msgs := validateSource(t, `if Data.run then
  var y = 2
end
Data.out = y`)
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("expected InvalidVariableReference for out-of-scope read, got %v", codes(msgs))
	}
}

func TestAssignToBareData(t *testing.T) {
	msgs := validateSource(t, `Data = 1`)
	if !hasCode(msgs, diag.InvalidAssignmentTarget) {
		t.Errorf("expected InvalidAssignmentTarget, got %v", codes(msgs))
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	msgs := validateSource(t, `break`)
	if !hasCode(msgs, diag.LoopStatementOutsideOfLoop) {
		t.Errorf("expected LoopStatementOutsideOfLoop, got %v", codes(msgs))
	}
}

func TestContinueOutsideLoop(t *testing.T) {
	msgs := validateSource(t, `continue`)
	if !hasCode(msgs, diag.LoopStatementOutsideOfLoop) {
		t.Errorf("expected LoopStatementOutsideOfLoop, got %v", codes(msgs))
	}
}

func TestBreakInsideSwitchAllowed(t *testing.T) {
	msgs := validateSource(t, `switch Data.kind
case 1:
  break
end`)
	if diag.HasErrors(msgs) {
		t.Errorf("break inside switch is legal, got %v", msgs)
	}
}

func TestContinueInsideSwitchWithoutLoopRejected(t *testing.T) {
	msgs := validateSource(t, `switch Data.kind
case 1:
  continue
end`)
	if !hasCode(msgs, diag.LoopStatementOutsideOfLoop) {
		t.Errorf("expected LoopStatementOutsideOfLoop for continue, got %v", codes(msgs))
	}
}

func TestIteratorScopedToLoop(t *testing.T) {
	msgs := validateSource(t, `foreach o in Data.orders do Data.x = o end
Data.y = o`)
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("iterator must not leak out of the loop, got %v", codes(msgs))
	}
}

func TestExcessiveLoopNestingWarning(t *testing.T) {
	msgs := validateSource(t, `while Data.a do
  while Data.b do
    while Data.c do
      while Data.d do
        Data.x = 1
      end
    end
  end
end`)
	if diag.HasErrors(msgs) {
		t.Fatalf("nesting warning must not be an error: %v", msgs)
	}
	if !hasCode(msgs, diag.ExcessiveLoopNesting) {
		t.Errorf("expected ExcessiveLoopNesting warning, got %v", codes(msgs))
	}
}

func TestUnreachableCodeWarning(t *testing.T) {
	msgs := validateSource(t, `while Data.run do
  break
  Data.x = 1
end`)
	if diag.HasErrors(msgs) {
		t.Fatalf("unreachable warning must not be an error: %v", msgs)
	}
	if !hasCode(msgs, diag.UnreachableCode) {
		t.Errorf("expected UnreachableCode warning, got %v", codes(msgs))
	}
}

func TestEachIfBranchCountedSeparately(t *testing.T) {
	// A terminator in one branch must not mark the other branch's
	// statements unreachable.
	msgs := validateSource(t, `while Data.run do
  if Data.a then
    break
  else
    Data.x = 1
  end
  Data.y = 2
end`)
	if hasCode(msgs, diag.UnreachableCode) {
		t.Errorf("statements after a branching if are reachable, got %v", codes(msgs))
	}
}

func TestLambdaParamsScopedToBody(t *testing.T) {
	msgs := validateSource(t, `var f = |a| a * 2
Data.x = a`)
	if !hasCode(msgs, diag.InvalidVariableReference) {
		t.Errorf("lambda params must not leak, got %v", codes(msgs))
	}
}

func TestIncrementTargetMustBeAssignable(t *testing.T) {
	prog, diags := parser.Parse(`(1 + 2)++`)
	if diag.HasErrors(diags) {
		// The parser may reject this outright, which is equally acceptable;
		// only assert when it reaches validation.
		return
	}
	msgs := Validate(prog)
	if !hasCode(msgs, diag.InvalidAssignmentTarget) {
		t.Errorf("expected InvalidAssignmentTarget, got %v", codes(msgs))
	}
}

func TestHostBuiltinsAccepted(t *testing.T) {
	prog, diags := parser.Parse(`Data.env = Environment`)
	if diag.HasErrors(diags) {
		t.Fatal(diags)
	}
	msgs := Validate(prog, "Environment")
	if diag.HasErrors(msgs) {
		t.Errorf("extra builtins must be visible, got %v", msgs)
	}
}
