package harness

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/govkit/internal/ir"
)

// GoldenDir holds golden trace files, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a scenario run: its name and the step
// transactions.
type TraceSnapshot struct {
	ScenarioName string    `json:"scenario_name"`
	Transactions []TraceTx `json:"transactions"`
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// handles maps, slices and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	txs := make([]any, len(s.Transactions))
	for i, tx := range s.Transactions {
		events := make([]any, len(tx.Events))
		for j, ev := range tx.Events {
			events[j] = map[string]any{
				"emitter": ev.Emitter,
				"name":    ev.Name,
				"fields":  ev.Fields,
			}
		}
		txMap := map[string]any{
			"seq":    tx.Seq,
			"id":     tx.ID,
			"label":  tx.Label,
			"sender": tx.Sender,
			"status": tx.Status,
			"events": events,
		}
		if tx.ErrorCode != "" {
			txMap["error_code"] = tx.ErrorCode
		}
		txs[i] = txMap
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"transactions":  txs,
	}
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Transactions: result.Trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden. A failing result fails the test.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed: %v", scenario.Name, result.Errors)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

// HasGolden reports whether a golden file exists for scenarioName, or
// whether the test binary runs with -update and will write one.
func HasGolden(scenarioName string) bool {
	if f := flag.Lookup("update"); f != nil && f.Value.String() == "true" {
		return true
	}
	_, err := os.Stat(filepath.Join(GoldenDir, scenarioName+".golden"))
	return err == nil
}
