package frontier

import (
	"slices"
	"sort"
	"strings"

	"grocery/crawler/internal/classifier"
	"grocery/crawler/internal/domain"
)

// depthPriorityLimits is the highest priority admitted at each depth
var depthPriorityLimits = map[int]int{
	0: 3,
	1: 4,
	2: 5,
	3: 6,
}

const deepPriorityLimit = 10

// MaxAllowedPriority returns the depth gate for currentDepth
func MaxAllowedPriority(currentDepth int) int {
	if limit, ok := depthPriorityLimits[currentDepth]; ok {
		return limit
	}
	return deepPriorityLimit
}

// Admits reports whether link passes the depth gate at currentDepth
func Admits(link domain.LinkInfo, currentDepth int) bool {
	return link.GatePriority() <= MaxAllowedPriority(currentDepth)
}

// Flatten merges categorized links into a single sequence sorted by priority.
// Each link is tagged with the type it was grouped under; links without a
// priority come last and ties keep their discovery order.
func Flatten(links domain.CategorizedLinks) []domain.LinkInfo {
	flat := make([]domain.LinkInfo, 0, links.Total())

	for _, t := range domain.LinkTypes {
		for _, link := range links[t] {
			link.SourceType = t
			flat = append(flat, link)
		}
	}
	// types outside the known set keep a deterministic position at the end
	var extra []domain.LinkType
	for t := range links {
		if !isKnownType(t) {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, t := range extra {
		for _, link := range links[t] {
			link.SourceType = t
			flat = append(flat, link)
		}
	}

	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].SortPriority() < flat[j].SortPriority()
	})

	return flat
}

func isKnownType(t domain.LinkType) bool {
	return slices.Contains(domain.LinkTypes, t)
}

// OperationalPaths matches URLs the crawler must never visit
type OperationalPaths struct {
	patterns []string
}

func NewOperationalPaths(patterns []string) OperationalPaths {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		lowered = append(lowered, strings.ToLower(p))
	}
	return OperationalPaths{patterns: lowered}
}

// Match returns the first pattern the URL path matches
func (o OperationalPaths) Match(rawURL string) (string, bool) {
	p := strings.ToLower(pathOf(rawURL))
	for _, pattern := range o.patterns {
		if classifier.PathMatches(p, pattern) {
			return pattern, true
		}
	}
	return "", false
}
