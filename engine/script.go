package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ExecScript executes a multi-statement SQL script one statement at a time.
// Statements are separated by a semicolon at end of line, which is enough for
// fixture files (no procedural bodies). Splitting client-side keeps the
// script usable with drivers that reject multi-statement commands.
func ExecScript(ctx context.Context, h *sql.DB, script string) error {
	for _, stmt := range SplitStatements(script) {
		if _, err := h.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec script statement %q: %w", abbreviate(stmt), err)
		}
	}
	return nil
}

// SplitStatements splits a SQL script into individual statements on
// semicolons at end of line, dropping comments-only and empty fragments.
func SplitStatements(script string) []string {
	var stmts []string
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(b.String()))
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

func abbreviate(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
