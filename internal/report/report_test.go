package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/starford/pixgrade/internal/grading"
)

func sampleSummary() *grading.Summary {
	return &grading.Summary{
		Reports: []grading.Report{
			{Student: "alphaann", Verdict: grading.Verdict{Complete: true}},
			{
				Student: "gammagil",
				Outcomes: map[string]grading.Outcome{
					"hw_1_1_a.png": {Kind: grading.Compared},
					"hw_1_2_b.png": {Kind: grading.Missing},
					"hw_1_2_a.png": {Kind: grading.Missing},
					"hw_1_3_a.png": {Kind: grading.Ambiguous},
				},
			},
		},
		Unknown: []string{"stranger"},
		Awarded: 2,
	}
}

func TestBuild_ListsOnlyExceptions(t *testing.T) {
	tbl := Build(sampleSummary())
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tbl.Rows))
	}
	if tbl.Rows[0][0] != "gammagil" {
		t.Errorf("first row = %v", tbl.Rows[0])
	}
	want := "missing: hw_1_2_a.png, hw_1_2_b.png; ambiguous: hw_1_3_a.png"
	if tbl.Rows[0][2] != want {
		t.Errorf("details = %q, want %q", tbl.Rows[0][2], want)
	}
	if tbl.Rows[1][0] != "stranger" || tbl.Rows[1][1] != "unknown" {
		t.Errorf("unknown row = %v", tbl.Rows[1])
	}
}

func TestWrite_IncludesSummaryAndRows(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleSummary()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"graded 2 students", "1 incomplete", "1 unknown", "gammagil", "stranger", "Needs attention"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTable_EmptyRendersNothing(t *testing.T) {
	tbl := &Table{Headers: []string{"a"}}
	if tbl.String() != "" {
		t.Errorf("expected empty output")
	}
}
