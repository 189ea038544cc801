// Package search finds events by substring over their main fields.
package search

import (
	"context"
	"eventmaster/domain"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
)

// Fields matched by the query terms.
var termFields = []string{"nombre", "tipo", "ubicacion", "fecha"}

// Fields accepted as --filter.
var filterFields = []string{"nombre", "tipo", "ubicacion", "fecha", "hora", "tema"}

// Index builds a throwaway in-memory Bluge index per search. Collections are
// small and already in memory, so nothing is kept between calls.
type Index struct {
	log *slog.Logger
}

func NewIndex(log *slog.Logger) *Index {
	return &Index{log: log}
}

// Search returns the events matching q in their original order, at most q.Limit.
// With no terms and no filters every event matches.
func (idx *Index) Search(ctx context.Context, events []domain.Event, q Query) ([]domain.Event, error) {
	if len(events) == 0 {
		return []domain.Event{}, nil
	}
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() { _ = writer.Close() }()

	// 1. Index every event under its position
	batch := bluge.NewBatch()
	for i, e := range events {
		doc := bluge.NewDocument(strconv.Itoa(i))
		for field, value := range fieldValues(e) {
			doc.AddField(bluge.NewKeywordField(field, strings.ToLower(value)))
		}
		batch.Update(doc.ID(), doc)
	}
	if err = writer.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to index events: %w", err)
	}

	reader, err := writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	// 2. Collect matching positions
	request := bluge.NewTopNSearch(len(events), idx.buildQuery(q))
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	hits := make(map[int]struct{})
	match, err := matches.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if pos, convErr := strconv.Atoi(string(value)); convErr == nil {
					hits[pos] = struct{}{}
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, fmt.Errorf("failed to read match: %w", visitErr)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}

	// 3. Keep the original order
	out := make([]domain.Event, 0, len(hits))
	for i, e := range events {
		if _, ok := hits[i]; ok {
			out = append(out, e)
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (idx *Index) buildQuery(q Query) bluge.Query {
	root := bluge.NewBooleanQuery()
	clauses := 0

	if term := sanitize(q.Terms); term != "" {
		anyField := bluge.NewBooleanQuery().SetMinShould(1)
		for _, field := range termFields {
			anyField.AddShould(bluge.NewWildcardQuery("*" + term + "*").SetField(field))
		}
		root.AddMust(anyField)
		clauses++
	}
	for key, value := range q.Filters {
		if !lo.Contains(filterFields, key) {
			idx.log.Debug("Ignoring unknown search filter", "filter", key)
			continue
		}
		root.AddMust(bluge.NewTermQuery(strings.ToLower(value)).SetField(key))
		clauses++
	}
	if clauses == 0 {
		return bluge.NewMatchAllQuery()
	}
	return root
}

// sanitize lowercases and drops wildcard metacharacters so user input is literal.
func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("*", "", "?", "").Replace(s)
}

func fieldValues(e domain.Event) map[string]string {
	return map[string]string{
		"nombre":    e.Nombre,
		"tipo":      e.Tipo,
		"ubicacion": e.Ubicacion,
		"fecha":     e.Fecha,
		"hora":      e.Hora,
		"tema":      e.Tema,
	}
}
