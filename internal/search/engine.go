// Package search runs validated, capped catalog lookups for free-text queries.
package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"merchbot/core/logger"
	"merchbot/internal/catalog"

	"log/slog"
)

const (
	// MinQueryLen is the shortest accepted query after trimming, in characters.
	MinQueryLen = 2
	// MaxQueryLen is the longest accepted query after trimming, in characters.
	MaxQueryLen = 100
	// MaxResults caps how many matches one response carries.
	MaxResults = 20

	// probeLimit bounds the store fetch used to count truncated matches.
	probeLimit = 100
)

// Result is a validated, capped search outcome. Invalid holds a user-facing
// prompt when the query was rejected; store failures surface as an empty
// result, never as an error.
type Result struct {
	Nodes     []catalog.Node
	Truncated int
	Invalid   string
}

// Engine performs stateless catalog searches.
type Engine struct {
	store catalog.Store
}

// NewEngine wraps the catalog store.
func NewEngine(store catalog.Store) *Engine {
	return &Engine{store: store}
}

// Search validates the query and delegates to the store. Validation failures
// come back as prompts; transport failures degrade to "nothing found".
func (e *Engine) Search(ctx context.Context, query string) Result {
	q := strings.TrimSpace(query)
	switch n := utf8.RuneCountInString(q); {
	case n < MinQueryLen:
		return Result{Invalid: "Query is too short. Use at least 2 characters."}
	case n > MaxQueryLen:
		return Result{Invalid: "Query is too long. Keep it under 100 characters."}
	}

	// Fetch past the cap so the truncation count can be reported.
	nodes, err := e.store.Search(ctx, q, probeLimit)
	if err != nil {
		logger.Warn(ctx, "search", "search.store",
			slog.String("status", "fail"),
			slog.String("query", logger.SanitizeLimit(q, 64)),
			slog.String("err", err.Error()),
		)
		return Result{}
	}

	truncated := 0
	if len(nodes) > MaxResults {
		truncated = len(nodes) - MaxResults
		nodes = nodes[:MaxResults]
	}

	logger.Debug(ctx, "search", "search.done",
		slog.String("status", "ok"),
		slog.Int("results", len(nodes)),
		slog.Int("truncated", truncated),
	)
	return Result{Nodes: nodes, Truncated: truncated}
}
