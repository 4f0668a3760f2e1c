package pipeline

import (
	"testing"
	"time"

	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/linker"
	"github.com/jyro-lang/jyro/value"
)

// appendFunc mimics a stdlib Append for the end-to-end scenarios: mutates
// the array in place and returns it.
type appendFunc struct{}

func (appendFunc) Name() string { return "Append" }

func (appendFunc) Signature() linker.Signature {
	return linker.Signature{Name: "Append", MinArgs: 2, MaxArgs: 2}
}

func (appendFunc) Execute(args []value.Value, ctx linker.Context) (value.Value, error) {
	arr, ok := args[0].(*value.Array)
	if !ok {
		return nil, diag.NewFault(diag.ArgumentTypeMismatch, diag.Position{}, "0", "array", string(args[0].Kind()))
	}
	arr.Elements = append(arr.Elements, args[1])
	return arr, nil
}

func unlimited() Options {
	return Options{}
}

func jsonData(t *testing.T, doc string) value.Value {
	t.Helper()
	v, err := value.FromJSON([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestScenarioGreeting(t *testing.T) {
	data := jsonData(t, `{"name":"Alice","age":25}`)
	result := Run("Data.greeting = 'Hello, ' + Data.name + '!'\nData.canVote = Data.age >= 18",
		data, nil, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("run failed: %v", result.Messages)
	}
	ok, err := result.MatchesJSON([]byte(`{"name":"Alice","age":25,"greeting":"Hello, Alice!","canVote":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		out, _ := result.DataJSON()
		t.Errorf("data mismatch: %s", out)
	}
}

func TestScenarioLoopSum(t *testing.T) {
	data := jsonData(t, `{"orders":[{"total":150.0},{"total":75.5}]}`)
	result := Run("var t = 0\nforeach o in Data.orders do t = t + o.total end\nData.total = t",
		data, nil, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("run failed: %v", result.Messages)
	}
	obj := result.Data.(*value.Object)
	total, _ := obj.GetPropertyLiteral("total")
	if !value.Equal(total, value.NewFloat(225.5)) {
		t.Errorf("total: %v", total)
	}
}

func TestScenarioRangeForDescending(t *testing.T) {
	data := value.NewObject()
	result := Run("var a = []\nfor i = 5 to 1 by -2 do Append(a, i) end\nData.a = a",
		data, []linker.FunctionProvider{appendFunc{}}, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("run failed: %v", result.Messages)
	}
	a, _ := data.GetPropertyLiteral("a")
	want := value.NewArray(value.NewInt(5), value.NewInt(3), value.NewInt(1))
	if !value.Equal(a, want) {
		t.Errorf("a: %v", a)
	}
}

func TestScenarioExecutionTimeLimit(t *testing.T) {
	opts := Options{MaxExecutionTime: 50 * time.Millisecond}
	result := Run(`while true do end`, value.NewObject(), nil, opts, nil)
	if result.IsSuccessful {
		t.Fatal("expected failure")
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %v", result.Messages)
	}
	if result.Messages[0].Code != diag.ExecutionTimeLimitExceeded {
		t.Errorf("code: %v", result.Messages[0])
	}
}

func TestScenarioFail(t *testing.T) {
	result := Run(`fail "bad"`, value.NewObject(), nil, unlimited(), nil)
	if result.IsSuccessful {
		t.Fatal("expected failure")
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected one diagnostic, got %v", result.Messages)
	}
	m := result.Messages[0]
	if m.Code != diag.RuntimeError || len(m.Arguments) != 1 || m.Arguments[0] != "bad" {
		t.Errorf("diagnostic: %+v", m)
	}
	if result.ExitCode() != 1 {
		t.Errorf("exit code: %d", result.ExitCode())
	}
}

func TestScenarioBinaryRoundTrip(t *testing.T) {
	const src = "var t = 0\nforeach o in Data.orders do t = t + o.total end\nData.total = t"
	mkData := func() value.Value { return jsonData(t, `{"orders":[{"total":1.5},{"total":2.0}]}`) }

	prog, diags := Compile(src, nil)
	if prog == nil {
		t.Fatalf("compile: %v", diags)
	}
	blob, err := prog.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	direct := Execute(prog, mkData(), unlimited(), nil)
	if !direct.IsSuccessful {
		t.Fatalf("direct run: %v", direct.Messages)
	}

	loaded, ldiags := CompileBytes(blob, nil)
	if loaded == nil {
		t.Fatalf("load: %v", ldiags)
	}
	if loaded.SourceHash != prog.SourceHash {
		t.Error("source hash must survive serialization")
	}
	if loaded.Stages.Parse != 0 || loaded.Stages.Validate != 0 {
		t.Error("the .jyrx path must not spend time parsing or validating")
	}

	viaBytes := Execute(loaded, mkData(), unlimited(), nil)
	if !viaBytes.IsSuccessful {
		t.Fatalf("jyrx run: %v", viaBytes.Messages)
	}
	if !value.Equal(direct.Data, viaBytes.Data) {
		t.Error("both paths must produce identical data")
	}
}

func TestCompileErrorsReported(t *testing.T) {
	result := Run(`if true then`, value.NewObject(), nil, unlimited(), nil)
	if result.IsSuccessful {
		t.Fatal("expected failure")
	}
	if len(result.Messages) == 0 {
		t.Fatal("expected diagnostics")
	}
	if result.Data == nil {
		t.Error("data must always be set")
	}
}

func TestValidationErrorAbortsBeforeExecution(t *testing.T) {
	data := value.NewObject()
	result := Run(`Data.x = undeclared`, data, nil, unlimited(), nil)
	if result.IsSuccessful {
		t.Fatal("expected failure")
	}
	if _, ok := data.GetPropertyLiteral("x"); ok {
		t.Error("nothing may execute after a validation error")
	}
}

func TestQuotaMonotonicity(t *testing.T) {
	src := `var i = 0
while i < 100 do i = i + 1 end
Data.done = true`
	small := Run(src, value.NewObject(), nil, Options{MaxLoopIterations: 10}, nil)
	if small.IsSuccessful {
		t.Fatal("small quota should fail")
	}
	large := Run(src, value.NewObject(), nil, Options{MaxLoopIterations: 100000}, nil)
	if !large.IsSuccessful {
		t.Fatalf("raising the quota must fix the failure: %v", large.Messages)
	}
}

func TestMetadataCounters(t *testing.T) {
	result := Run(`var i = 0
while i < 3 do i = i + 1 end`, value.NewObject(), nil, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("%v", result.Messages)
	}
	if result.Metadata.LoopCount != 3 {
		t.Errorf("loop count: %d", result.Metadata.LoopCount)
	}
	if result.Metadata.StatementCount == 0 {
		t.Error("statement count must be recorded")
	}
	if result.Metadata.StartedAt.IsZero() {
		t.Error("StartedAt must be recorded")
	}
}

func TestFunctionCallsCounted(t *testing.T) {
	result := Run(`var a = []
Append(a, 1)
Append(a, 2)`, value.NewObject(), []linker.FunctionProvider{appendFunc{}}, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("%v", result.Messages)
	}
	if result.Metadata.FunctionCallCount != 2 {
		t.Errorf("function calls: %d", result.Metadata.FunctionCallCount)
	}
	if result.Metadata.MaxCallDepth != 1 {
		t.Errorf("max call depth: %d", result.Metadata.MaxCallDepth)
	}
}

func TestRunnerFluentChain(t *testing.T) {
	result := NewRunner().
		WithScript(`Data.x = Data.a + 1`).
		WithDataJSON([]byte(`{"a": 41}`)).
		Run(nil)
	if !result.IsSuccessful {
		t.Fatalf("%v", result.Messages)
	}
	out, _ := result.DataJSON()
	if string(out) != `{"a":41,"x":42}` {
		t.Errorf("json: %s", out)
	}
}

func TestRunnerScriptBytes(t *testing.T) {
	prog, diags := Compile(`Data.x = 1`, nil)
	if prog == nil {
		t.Fatal(diags)
	}
	blob, err := prog.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	result := NewRunner().
		WithScriptBytes(blob).
		WithData(value.NewObject()).
		Run(nil)
	if !result.IsSuccessful {
		t.Fatalf("%v", result.Messages)
	}
}

func TestRunnerBadJSONReported(t *testing.T) {
	result := NewRunner().
		WithScript(`Data.x = 1`).
		WithDataJSON([]byte(`{not json`)).
		Run(nil)
	if result.IsSuccessful {
		t.Fatal("expected failure")
	}
}

func TestRunnerMissingFunctionSurfacesAtLink(t *testing.T) {
	result := NewRunner().
		WithScript(`Append(Data.items, 1)`).
		WithData(value.NewObject()).
		Run(nil)
	if result.IsSuccessful {
		t.Fatal("expected link failure")
	}
	if result.Messages[0].Code != diag.UndefinedFunction {
		t.Errorf("got %v", result.Messages[0])
	}
}

func TestLoadOptionsYAML(t *testing.T) {
	opts, err := LoadOptionsYAML([]byte(`max_execution_time: 250ms
max_statements: 500
max_loop_iterations: 1000
max_call_depth: 32
max_script_call_depth: 4`))
	if err != nil {
		t.Fatal(err)
	}
	if opts.MaxExecutionTime != 250*time.Millisecond {
		t.Errorf("time: %v", opts.MaxExecutionTime)
	}
	if opts.MaxStatements != 500 || opts.MaxLoopIterations != 1000 ||
		opts.MaxCallDepth != 32 || opts.MaxScriptCallDepth != 4 {
		t.Errorf("options: %+v", opts)
	}
}

func TestLoadOptionsYAMLKeepsDefaultsForOmittedKeys(t *testing.T) {
	opts, err := LoadOptionsYAML([]byte(`max_statements: 7`))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultOptions()
	if opts.MaxStatements != 7 {
		t.Errorf("override lost: %+v", opts)
	}
	if opts.MaxExecutionTime != def.MaxExecutionTime {
		t.Errorf("default lost: %+v", opts)
	}
}

func TestLoadOptionsYAMLRejectsGarbage(t *testing.T) {
	if _, err := LoadOptionsYAML([]byte("max_statements: [not a number")); err == nil {
		t.Error("expected error")
	}
}

func TestFunctionalOptions(t *testing.T) {
	opts := NewOptions(
		WithMaxExecutionTime(time.Second),
		WithMaxStatements(10),
		WithMaxLoopIterations(20),
		WithMaxCallDepth(5),
		WithMaxScriptCallDepth(2),
	)
	if opts.MaxExecutionTime != time.Second || opts.MaxStatements != 10 ||
		opts.MaxLoopIterations != 20 || opts.MaxCallDepth != 5 || opts.MaxScriptCallDepth != 2 {
		t.Errorf("options: %+v", opts)
	}
}

func TestNumberFormattingPreservedThroughRun(t *testing.T) {
	data := jsonData(t, `{"a":6.0,"b":6}`)
	result := Run(`Data.c = Data.a
Data.d = Data.b`, data, nil, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("%v", result.Messages)
	}
	out, _ := result.DataJSON()
	if string(out) != `{"a":6.0,"b":6,"c":6.0,"d":6}` {
		t.Errorf("json: %s", out)
	}
}

func TestWarningsDoNotFailRun(t *testing.T) {
	src := `while Data.go do
  break
  Data.x = 1
end`
	result := Run(src, jsonData(t, `{"go":false}`), nil, unlimited(), nil)
	if !result.IsSuccessful {
		t.Fatalf("warnings alone must not fail the run: %v", result.Messages)
	}
	found := false
	for _, m := range result.Messages {
		if m.Code == diag.UnreachableCode {
			found = true
		}
	}
	if !found {
		t.Error("the unreachable-code warning should be carried on the result")
	}
}
