package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/SiliconLion/sumi/internal/state"
	"github.com/SiliconLion/sumi/internal/storage"
)

// Statistics is the read-side aggregation of a crawl database.
type Statistics struct {
	TotalPages         int64
	PagesByState       map[state.PageState]int64
	UniqueDomains      int64
	TotalLinks         int64
	ErrorSummary       map[state.PageState]int64
	RateLimitedDomains []string
}

// LoadStatistics queries the aggregate counters from storage.
func LoadStatistics(store storage.Store) (*Statistics, error) {
	totalPages, err := store.CountTotalPages()
	if err != nil {
		return nil, err
	}
	uniqueDomains, err := store.CountUniqueDomains()
	if err != nil {
		return nil, err
	}
	totalLinks, err := store.CountLinks()
	if err != nil {
		return nil, err
	}
	errorSummary, err := store.ErrorSummary()
	if err != nil {
		return nil, err
	}

	pagesByState := make(map[state.PageState]int64)
	for _, st := range state.AllStates() {
		count, err := store.CountPagesByState(st)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			pagesByState[st] = count
		}
	}

	rateLimited, err := store.GetRateLimitedDomains()
	if err != nil {
		return nil, err
	}

	return &Statistics{
		TotalPages:         totalPages,
		PagesByState:       pagesByState,
		UniqueDomains:      uniqueDomains,
		TotalLinks:         totalLinks,
		ErrorSummary:       errorSummary,
		RateLimitedDomains: rateLimited,
	}, nil
}

// Print writes the formatted statistics block.
func (s *Statistics) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Crawl Statistics ===\n\n")

	fmt.Fprintf(w, "Overview:\n")
	fmt.Fprintf(w, "  Total pages discovered: %d\n", s.TotalPages)
	fmt.Fprintf(w, "  Unique domains: %d\n", s.UniqueDomains)
	fmt.Fprintf(w, "  Total links found: %d\n\n", s.TotalLinks)

	fmt.Fprintf(w, "Pages by State:\n")
	for _, entry := range sortByCount(s.PagesByState) {
		percentage := 0.0
		if s.TotalPages > 0 {
			percentage = float64(entry.count) / float64(s.TotalPages) * 100.0
		}
		fmt.Fprintf(w, "  %s: %d (%.1f%%)\n", entry.state, entry.count, percentage)
	}
	fmt.Fprintln(w)

	if len(s.ErrorSummary) > 0 {
		fmt.Fprintf(w, "Error Summary:\n")
		for _, entry := range sortByCount(s.ErrorSummary) {
			fmt.Fprintf(w, "  %s: %d\n", entry.state, entry.count)
		}
		fmt.Fprintln(w)
	}

	if len(s.RateLimitedDomains) > 0 {
		fmt.Fprintf(w, "Rate Limited Domains (%d):\n", len(s.RateLimitedDomains))
		for _, domain := range s.RateLimitedDomains {
			fmt.Fprintf(w, "  - %s\n", domain)
		}
		fmt.Fprintln(w)
	}

	processed := s.PagesByState[state.Processed]
	successRate := 0.0
	if s.TotalPages > 0 {
		successRate = float64(processed) / float64(s.TotalPages) * 100.0
	}
	fmt.Fprintf(w, "Success Rate: %.1f%% (%d / %d pages successfully processed)\n",
		successRate, processed, s.TotalPages)
}

type stateCount struct {
	state state.PageState
	count int64
}

// sortByCount orders entries by count descending, then state ascending
// for deterministic output.
func sortByCount(counts map[state.PageState]int64) []stateCount {
	entries := make([]stateCount, 0, len(counts))
	for st, count := range counts {
		entries = append(entries, stateCount{state: st, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].state < entries[j].state
	})
	return entries
}
