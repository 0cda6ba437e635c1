// Package report writes the artifacts of a tournament run: the CSV ledger of
// every scored answer and the per-category summary tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ahrav/go-riddler/internal/domain"
)

// LedgerHeader is the first row of every ledger.
var LedgerHeader = []string{
	"round", "category", "setter", "solver", "riddle",
	"answer", "solution", "given_answer", "correct",
}

// WriteLedger writes results as CSV in play order. The solution column is
// only filled for arithmetic riddles.
func WriteLedger(w io.Writer, results []domain.MatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range results {
		solution := ""
		if r.Category == domain.CategoryArithmetic {
			solution = r.Explanation
		}
		row := []string{
			strconv.Itoa(r.Round),
			r.Category.String(),
			r.Setter.ID,
			r.Solver.ID,
			r.Prompt,
			r.ReferenceAnswer,
			solution,
			r.GivenAnswer,
			strconv.FormatBool(r.Correct),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteLedgerFile writes the ledger to path, creating parent directories.
// The file is written beside path and renamed into place so a failed run
// never leaves a truncated ledger.
func WriteLedgerFile(path string, results []domain.MatchResult) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := WriteLedger(tmp, results); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move ledger into place: %w", err)
	}
	return nil
}
