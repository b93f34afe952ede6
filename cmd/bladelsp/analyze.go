package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bladelsp/internal/engine"
	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// fileReport is the analyze output for one file
type fileReport struct {
	File        string           `json:"file"`
	Status      string           `json:"status"`
	Facts       types.PatternSet `json:"facts"`
	Diagnostics []diagnostic     `json:"diagnostics,omitempty"`
}

type diagnostic struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

func toDiagnostics(errs []*blerrors.ParseError) []diagnostic {
	out := make([]diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, diagnostic{
			Kind:        string(e.Kind),
			Message:     e.Message,
			Line:        e.Line,
			Column:      e.Column,
			Recoverable: e.Recoverable,
			Suggestion:  e.Suggestion,
			Strategy:    e.Strategy,
		})
	}
	return out
}

// loadFile reads path and pushes it to the engine as version 1.
func loadFile(ctx context.Context, e *engine.Engine, path string) (types.FileID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	file := types.FileID(abs)
	if err := e.Update(ctx, file, content, 1); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", path, err)
	}
	return file, nil
}

func analyzeCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("analyze requires at least one FILE")
	}

	e, _, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	reports := make([]fileReport, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		file, err := loadFile(c.Context, e, path)
		if err != nil {
			return err
		}
		set, _ := e.GetPatterns(file, 1)
		status, errs, _ := e.Outcome(file, 1)
		reports = append(reports, fileReport{
			File:        path,
			Status:      status,
			Facts:       set,
			Diagnostics: toDiagnostics(errs),
		})
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	for _, r := range reports {
		writeReport(c.App.Writer, r)
	}
	return nil
}

func writeReport(w io.Writer, r fileReport) {
	fmt.Fprintf(w, "%s: %s (%d facts)\n", r.File, r.Status, r.Facts.Len())
	for _, cat := range types.AllCategories {
		facts := r.Facts[cat]
		if len(facts) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s:\n", cat)
		for _, f := range facts {
			line := fmt.Sprintf("    %-24s %d:%d-%d:%d", f.Text, f.Start.Line, f.Start.Column, f.End.Line, f.End.Column)
			if f.Detail != "" {
				line += "  " + f.Detail
			}
			if f.HasDefault {
				line += "  (has fallback)"
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, d := range r.Diagnostics {
		pos := "-"
		if d.Line >= 0 {
			pos = fmt.Sprintf("%d:%d", d.Line, d.Column)
		}
		msg := fmt.Sprintf("  ! %s %s: %s", d.Kind, pos, d.Message)
		if d.Suggestion != "" {
			msg += " (" + d.Suggestion + ")"
		}
		fmt.Fprintln(w, msg)
	}
}

func hoverCommand(c *cli.Context) error {
	if c.NArg() != 3 {
		return fmt.Errorf("usage: hover FILE LINE COL")
	}
	line, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || line < 0 {
		return fmt.Errorf("invalid line %q", c.Args().Get(1))
	}
	col, err := strconv.Atoi(c.Args().Get(2))
	if err != nil || col < 0 {
		return fmt.Errorf("invalid column %q", c.Args().Get(2))
	}

	e, _, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	file, err := loadFile(c.Context, e, c.Args().Get(0))
	if err != nil {
		return err
	}

	answer, err := e.GetHover(c.Context, file, types.Position{Line: uint32(line), Column: uint32(col)}, 1)
	if err != nil {
		return err
	}
	if answer == nil {
		fmt.Fprintln(c.App.Writer, "no hover")
		return nil
	}
	fmt.Fprintln(c.App.Writer, strings.TrimRight(answer.Markdown, "\n"))
	return nil
}
