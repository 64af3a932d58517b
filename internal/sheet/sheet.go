// Package sheet reads and writes the grade sheet CSV: a header row carrying
// per-problem point values followed by one row per student.
package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/storage"
)

const bom = "\ufeff"

var (
	ptsRe    = regexp.MustCompile(`(?i)(\d+)\s*#?\s*pts`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// ParseMaxScore extracts a problem's point value from its header cell.
// "5 pts", "10pts" and "3 #pts" parse directly. Otherwise the first run of
// digits is used, and failing that 1; both fallbacks return the score along
// with an error wrapping apperr.ErrHeaderFallback.
func ParseMaxScore(header string) (int, error) {
	if m := ptsRe.FindStringSubmatch(header); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, nil
		}
	}
	if m := digitsRe.FindString(header); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n, fmt.Errorf("%q: using first number %d: %w", header, n, apperr.ErrHeaderFallback)
		}
	}
	return 1, fmt.Errorf("%q: no point value, using 1: %w", header, apperr.ErrHeaderFallback)
}

// StudentKey derives the lookup key for a "Lastname, Firstname" cell:
// last+first, lowercased, with hyphens and spaces removed. ok is false when
// the cell has no ", " separator.
func StudentKey(name string) (key string, ok bool) {
	last, first, ok := strings.Cut(name, ", ")
	if !ok {
		return "", false
	}
	key = norm.NFKC.String(last + first)
	key = strings.NewReplacer("-", "", " ", "").Replace(key)
	return strings.ToLower(key), true
}

// Sheet is a loaded grade sheet. Rows keep their original shape; only
// awarded cells change.
type Sheet struct {
	Rows      [][]string
	MaxScores []int // index problem-1
	index     map[string]int
}

// Load reads the sheet at path and parses max scores for problems 1..numProblems,
// which occupy header columns 1..numProblems.
func Load(path string, numProblems int, logger *slog.Logger) (*Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: read %s: %w", path, err)
	}
	return Parse(data, numProblems, logger)
}

// Parse is Load on in-memory CSV data.
func Parse(data []byte, numProblems int, logger *slog.Logger) (*Sheet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(bom))))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheet: parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet: empty csv")
	}

	s := &Sheet{
		Rows:      rows,
		MaxScores: make([]int, numProblems),
		index:     make(map[string]int, len(rows)-1),
	}

	header := rows[0]
	for p := 1; p <= numProblems; p++ {
		cell := ""
		if p < len(header) {
			cell = header[p]
		}
		score, err := ParseMaxScore(cell)
		if err != nil {
			logger.Warn("sheet: header fallback",
				slog.Int("problem", p),
				slog.Int("max_score", score),
				slog.String("error", err.Error()))
		}
		s.MaxScores[p-1] = score
	}

	for i := 1; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		key, ok := StudentKey(rows[i][0])
		if !ok {
			logger.Warn("sheet: row without 'Lastname, Firstname'",
				slog.Int("row", i),
				slog.String("cell", rows[i][0]))
			continue
		}
		s.index[key] = i
	}
	return s, nil
}

// Row returns the row index of a student key.
func (s *Sheet) Row(student string) (int, bool) {
	i, ok := s.index[student]
	return i, ok
}

// Award sets the student's cell for problem to the problem's max score.
func (s *Sheet) Award(student string, problem int) error {
	row, ok := s.index[student]
	if !ok {
		return fmt.Errorf("sheet: %s: %w", student, apperr.ErrUnknownStudent)
	}
	if problem < 1 || problem > len(s.MaxScores) {
		return fmt.Errorf("sheet: problem %d out of range 1..%d", problem, len(s.MaxScores))
	}
	for len(s.Rows[row]) <= problem {
		s.Rows[row] = append(s.Rows[row], "")
	}
	s.Rows[row][problem] = strconv.Itoa(s.MaxScores[problem-1])
	return nil
}

// Encode serializes the sheet with "\n" line endings. Fields are quoted
// only when they hold a comma, a quote or a line break, so cells with
// leading spaces come back exactly as they were read.
func (s *Sheet) Encode() ([]byte, error) {
	var buf bytes.Buffer
	for _, row := range s.Rows {
		if len(row) == 1 && row[0] == "" {
			// a lone empty field would otherwise read back as a blank line
			buf.WriteString(`""`)
		}
		for i, field := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			if !strings.ContainsAny(field, ",\"\r\n") {
				buf.WriteString(field)
				continue
			}
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
			buf.WriteByte('"')
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Write atomically writes the sheet to path.
func (s *Sheet) Write(path string) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := storage.WriteFile(path, data); err != nil {
		return fmt.Errorf("sheet: write %s: %w", path, err)
	}
	return nil
}
