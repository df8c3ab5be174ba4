package models

import (
	"fmt"
	"strings"
)

// EraseCount is the number of rows removed from one collection.
type EraseCount struct {
	Collection string
	Removed    int64
}

// EraseStats tallies an erasure in the order the collections were processed.
type EraseStats struct {
	Counts []EraseCount
}

func (s *EraseStats) Add(collection string, removed int64) {
	s.Counts = append(s.Counts, EraseCount{Collection: collection, Removed: removed})
}

func (s *EraseStats) Total() int64 {
	var total int64
	for _, c := range s.Counts {
		total += c.Removed
	}
	return total
}

// Get returns the count recorded for a collection, 0 if it was not touched.
func (s *EraseStats) Get(collection string) int64 {
	for _, c := range s.Counts {
		if c.Collection == collection {
			return c.Removed
		}
	}
	return 0
}

// Lines renders one "- label: n" line per collection.
func (s *EraseStats) Lines(lang string) string {
	lines := make([]string, 0, len(s.Counts))
	for _, c := range s.Counts {
		lines = append(lines, fmt.Sprintf("- %s: %d", GetTranslation(lang, "target_"+c.Collection), c.Removed))
	}
	return strings.Join(lines, "\n")
}
