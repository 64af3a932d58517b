package sheet

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/pixgrade/internal/apperr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseMaxScore(t *testing.T) {
	cases := []struct {
		header   string
		want     int
		fallback bool
	}{
		{"5 pts", 5, false},
		{"10pts", 10, false},
		{"Problem 2 (3 #pts)", 3, false},
		{"4 PTS", 4, false},
		{"7", 7, true},
		{"Q12 worth", 12, true},
		{"pts", 1, true},
		{"", 1, true},
	}
	for _, tc := range cases {
		got, err := ParseMaxScore(tc.header)
		if got != tc.want {
			t.Errorf("ParseMaxScore(%q) = %d, want %d", tc.header, got, tc.want)
		}
		if fb := errors.Is(err, apperr.ErrHeaderFallback); fb != tc.fallback {
			t.Errorf("ParseMaxScore(%q) fallback = %v, want %v (err %v)", tc.header, fb, tc.fallback, err)
		}
	}
}

func TestStudentKey(t *testing.T) {
	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"Smith, John-Paul", "smithjohnpaul", true},
		{"Van Der Berg, Anna", "vanderberganna", true},
		{"O-Neil, Mary Ann", "oneilmaryann", true},
		{"Points Possible", "", false},
	}
	for _, tc := range cases {
		got, ok := StudentKey(tc.name)
		if got != tc.want || ok != tc.ok {
			t.Errorf("StudentKey(%q) = %q, %v; want %q, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

const sample = "\ufeffStudent,P1 (5 pts),P2 10pts,P3\n" +
	"\"Smith, John-Paul\",,0,\n" +
	"\"Doe, Jane\",1,,\n" +
	"Points Possible,5,10,1\n"

func TestParse_IndexAndMaxScores(t *testing.T) {
	s, err := Parse([]byte(sample), 3, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]int{5, 10, 1}, s.MaxScores); diff != "" {
		t.Errorf("max scores (-want +got):\n%s", diff)
	}
	if row, ok := s.Row("smithjohnpaul"); !ok || row != 1 {
		t.Errorf("Row(smithjohnpaul) = %d, %v", row, ok)
	}
	if row, ok := s.Row("doejane"); !ok || row != 2 {
		t.Errorf("Row(doejane) = %d, %v", row, ok)
	}
	if _, ok := s.Row("pointspossible"); ok {
		t.Error("rows without a comma must not be indexed")
	}
}

func TestParse_ShortHeaderDefaultsToOne(t *testing.T) {
	s, err := Parse([]byte("Student,5 pts\n\"A, B\",\n"), 3, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]int{5, 1, 1}, s.MaxScores); diff != "" {
		t.Errorf("max scores (-want +got):\n%s", diff)
	}
}

func TestAward_OnlyTouchesTargetCell(t *testing.T) {
	s, err := Parse([]byte(sample), 3, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Award("smithjohnpaul", 2); err != nil {
		t.Fatalf("Award: %v", err)
	}
	want := []string{"Smith, John-Paul", "", "10", ""}
	if diff := cmp.Diff(want, s.Rows[1]); diff != "" {
		t.Errorf("row (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Doe, Jane", "1", "", ""}, s.Rows[2]); diff != "" {
		t.Errorf("other row changed (-want +got):\n%s", diff)
	}
}

func TestAward_ExtendsShortRow(t *testing.T) {
	s, err := Parse([]byte("Student,1pts,2pts\n\"A, B\"\n"), 2, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Award("ab", 2); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if diff := cmp.Diff([]string{"A, B", "", "2"}, s.Rows[1]); diff != "" {
		t.Errorf("row (-want +got):\n%s", diff)
	}
}

func TestAward_UnknownStudent(t *testing.T) {
	s, err := Parse([]byte(sample), 3, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Award("nobody", 1); !errors.Is(err, apperr.ErrUnknownStudent) {
		t.Errorf("err = %v", err)
	}
	if err := s.Award("doejane", 4); err == nil {
		t.Error("out of range problem should fail")
	}
}

func TestWrite_PreservesShape(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(in, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(in, 3, quietLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Award("doejane", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(out); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := os.ReadFile(out)
	want := "Student,P1 (5 pts),P2 10pts,P3\n" +
		"\"Smith, John-Paul\",,0,\n" +
		"\"Doe, Jane\",5,,\n" +
		"Points Possible,5,10,1\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv"), 1, quietLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestEncode_QuotesOnlyWhenNeeded(t *testing.T) {
	in := "Student,P1 (5 pts),Notes\n" +
		"\"Doe, Jane\", 5,said \"\"hi\"\"\n" +
		"Points Possible,5,\n"
	s, err := Parse([]byte(in), 1, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := "Student,P1 (5 pts),Notes\n" +
		"\"Doe, Jane\", 5,\"said \"\"hi\"\"\"\n" +
		"Points Possible,5,\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("Encode (-want +got):\n%s", diff)
	}
}
