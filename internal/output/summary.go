package output

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/SiliconLion/sumi/internal/config"
	"github.com/SiliconLion/sumi/internal/state"
	"github.com/SiliconLion/sumi/internal/storage"
)

// Summary is everything the markdown report renders.
type Summary struct {
	// Run metadata
	RunID           int64
	StartedAt       string
	FinishedAt      string
	DurationSeconds int64
	Status          string
	ConfigHash      string

	// Overall statistics
	TotalPages    int64
	UniqueDomains int64
	TotalLinks    int64
	TotalErrors   int64

	// State breakdown
	PagesByState map[state.PageState]int64

	// Depth breakdown (effective depth -> page count)
	DepthBreakdown map[int]int64

	DiscoveredDomains  []string
	TopBlacklisted     []storage.URLRefCount
	TopStubbed         []storage.URLRefCount
	ErrorSummary       map[state.PageState]int64
	RateLimitedDomains []string
	QualityDomains     []string
}

// TotalTerminalPages counts pages in any terminal state.
func (s *Summary) TotalTerminalPages() int64 {
	var total int64
	for st, count := range s.PagesByState {
		if st.IsTerminal() {
			total += count
		}
	}
	return total
}

// SuccessRate is processed pages over terminal pages, as a percentage.
func (s *Summary) SuccessRate() float64 {
	terminal := s.TotalTerminalPages()
	if terminal == 0 {
		return 0.0
	}
	return float64(s.PagesByState[state.Processed]) / float64(terminal) * 100.0
}

// ErrorRate is error-state pages over terminal pages, as a percentage.
func (s *Summary) ErrorRate() float64 {
	terminal := s.TotalTerminalPages()
	if terminal == 0 {
		return 0.0
	}
	return float64(s.TotalErrors) / float64(terminal) * 100.0
}

// GenerateSummary assembles the full report data from storage. The
// config supplies the quality domain list; pass nil to omit it.
func GenerateSummary(store storage.Store, cfg *config.Config) (*Summary, error) {
	summary := &Summary{
		PagesByState:   make(map[state.PageState]int64),
		DepthBreakdown: make(map[int]int64),
	}

	run, err := store.GetLatestRun()
	if err != nil {
		return nil, err
	}
	if run != nil {
		summary.RunID = run.ID
		summary.StartedAt = run.StartedAt.Format("2006-01-02 15:04:05 MST")
		summary.Status = string(run.Status)
		summary.ConfigHash = run.ConfigHash
		if run.FinishedAt != nil {
			summary.FinishedAt = run.FinishedAt.Format("2006-01-02 15:04:05 MST")
			summary.DurationSeconds = int64(run.FinishedAt.Sub(run.StartedAt).Seconds())
		}
	}

	if summary.TotalPages, err = store.CountTotalPages(); err != nil {
		return nil, err
	}
	if summary.UniqueDomains, err = store.CountUniqueDomains(); err != nil {
		return nil, err
	}
	if summary.TotalLinks, err = store.CountLinks(); err != nil {
		return nil, err
	}

	for _, st := range state.AllStates() {
		count, err := store.CountPagesByState(st)
		if err != nil {
			return nil, err
		}
		summary.PagesByState[st] = count
		if st.IsError() {
			summary.TotalErrors += count
		}
	}

	if summary.DepthBreakdown, err = store.GetDepthBreakdown(); err != nil {
		return nil, err
	}
	if summary.DiscoveredDomains, err = store.GetDiscoveredDomains(); err != nil {
		return nil, err
	}
	if summary.TopBlacklisted, err = store.GetBlacklistedURLs(); err != nil {
		return nil, err
	}
	if summary.TopStubbed, err = store.GetStubbedURLs(); err != nil {
		return nil, err
	}
	if summary.ErrorSummary, err = store.ErrorSummary(); err != nil {
		return nil, err
	}
	if summary.RateLimitedDomains, err = store.GetRateLimitedDomains(); err != nil {
		return nil, err
	}

	if cfg != nil {
		for _, entry := range cfg.Quality {
			summary.QualityDomains = append(summary.QualityDomains, entry.Domain)
		}
	}

	return summary, nil
}

// RenderMarkdown formats the summary as a markdown document.
func RenderMarkdown(s *Summary) string {
	var md strings.Builder

	md.WriteString("# Sumi Crawl Summary\n\n")

	md.WriteString("## Run Information\n\n")
	fmt.Fprintf(&md, "- **Run ID**: %d\n", s.RunID)
	fmt.Fprintf(&md, "- **Started**: %s\n", s.StartedAt)
	if s.FinishedAt != "" {
		fmt.Fprintf(&md, "- **Finished**: %s\n", s.FinishedAt)
		fmt.Fprintf(&md, "- **Duration**: %d seconds (%.2f minutes)\n",
			s.DurationSeconds, float64(s.DurationSeconds)/60.0)
	}
	fmt.Fprintf(&md, "- **Status**: %s\n", s.Status)
	fmt.Fprintf(&md, "- **Config Hash**: %s\n\n", s.ConfigHash)

	md.WriteString("## Overall Statistics\n\n")
	fmt.Fprintf(&md, "- **Total Pages**: %d\n", s.TotalPages)
	fmt.Fprintf(&md, "- **Unique Domains**: %d\n", s.UniqueDomains)
	fmt.Fprintf(&md, "- **Total Links**: %d\n", s.TotalLinks)
	fmt.Fprintf(&md, "- **Total Errors**: %d\n", s.TotalErrors)
	fmt.Fprintf(&md, "- **Success Rate**: %.2f%%\n", s.SuccessRate())
	fmt.Fprintf(&md, "- **Error Rate**: %.2f%%\n\n", s.ErrorRate())

	md.WriteString("## Page State Breakdown\n\n")
	md.WriteString("| State | Count |\n")
	md.WriteString("|-------|-------|\n")
	for _, st := range state.AllStates() {
		fmt.Fprintf(&md, "| %s | %d |\n", stateLabel(st), s.PagesByState[st])
	}
	md.WriteString("\n")

	if len(s.DepthBreakdown) > 0 {
		md.WriteString("## Depth Breakdown\n\n")
		md.WriteString("| Depth | Pages |\n")
		md.WriteString("|-------|-------|\n")
		depths := make([]int, 0, len(s.DepthBreakdown))
		for depth := range s.DepthBreakdown {
			depths = append(depths, depth)
		}
		sort.Ints(depths)
		for _, depth := range depths {
			fmt.Fprintf(&md, "| %d | %d |\n", depth, s.DepthBreakdown[depth])
		}
		md.WriteString("\n")
	}

	if len(s.QualityDomains) > 0 {
		md.WriteString("## Quality Domains Crawled\n\n")
		for _, domain := range s.QualityDomains {
			fmt.Fprintf(&md, "- %s\n", domain)
		}
		md.WriteString("\n")
	}

	if len(s.DiscoveredDomains) > 0 {
		md.WriteString("## Discovered Domains\n\n")
		fmt.Fprintf(&md, "Total discovered: %d\n\n", len(s.DiscoveredDomains))
		shown := s.DiscoveredDomains
		if len(shown) > 50 {
			shown = shown[:50]
		}
		for _, domain := range shown {
			fmt.Fprintf(&md, "- %s\n", domain)
		}
		if len(s.DiscoveredDomains) > 50 {
			fmt.Fprintf(&md, "\n... and %d more\n", len(s.DiscoveredDomains)-50)
		}
		md.WriteString("\n")
	}

	writeRefTable(&md, "Top 20 Blacklisted URLs", s.TopBlacklisted)
	writeRefTable(&md, "Top 20 Stubbed URLs", s.TopStubbed)

	if len(s.ErrorSummary) > 0 {
		md.WriteString("## Error Summary\n\n")
		md.WriteString("| Error Type | Count |\n")
		md.WriteString("|------------|-------|\n")
		for _, entry := range sortByCount(s.ErrorSummary) {
			fmt.Fprintf(&md, "| %s | %d |\n", stateLabel(entry.state), entry.count)
		}
		md.WriteString("\n")
	}

	if len(s.RateLimitedDomains) > 0 {
		md.WriteString("## Rate Limited Domains\n\n")
		for _, domain := range s.RateLimitedDomains {
			fmt.Fprintf(&md, "- %s\n", domain)
		}
		md.WriteString("\n")
	}

	return md.String()
}

// WriteMarkdown renders the summary and writes it to path.
func WriteMarkdown(s *Summary, path string) error {
	return os.WriteFile(path, []byte(RenderMarkdown(s)), 0o644)
}

func writeRefTable(md *strings.Builder, title string, refs []storage.URLRefCount) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(md, "## %s\n\n", title)
	md.WriteString("| URL | References |\n")
	md.WriteString("|-----|------------|\n")
	if len(refs) > 20 {
		refs = refs[:20]
	}
	for _, ref := range refs {
		fmt.Fprintf(md, "| %s | %d |\n", ref.URL, ref.Count)
	}
	md.WriteString("\n")
}

// stateLabel renders a page state for human-readable tables.
func stateLabel(st state.PageState) string {
	switch st {
	case state.DeadLink:
		return "Dead Link (404)"
	default:
		words := strings.Split(string(st), "_")
		for i, word := range words {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
		return strings.Join(words, " ")
	}
}
