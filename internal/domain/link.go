package domain

import "math"

// DefaultGatePriority is used by the depth gate for links without a priority.
const DefaultGatePriority = 10

// LinkInfo is one discovered link
type LinkInfo struct {
	URL           string   `json:"url"`
	Text          string   `json:"text"`
	Title         string   `json:"title,omitempty"`
	CSSClasses    string   `json:"css_classes,omitempty"`
	Type          LinkType `json:"type"`
	Priority      int      `json:"priority,omitempty"` // 0 means unset
	Special       string   `json:"special,omitempty"`
	CategoryCodes []string `json:"category_codes,omitempty"`
	SourceType    LinkType `json:"source_type,omitempty"` // set when flattened
}

// PrimaryCategoryCode returns the last category code found in the URL.
func (l LinkInfo) PrimaryCategoryCode() string {
	if len(l.CategoryCodes) == 0 {
		return ""
	}
	return l.CategoryCodes[len(l.CategoryCodes)-1]
}

func (l LinkInfo) HasPriority() bool {
	return l.Priority > 0
}

// SortPriority orders links without a priority after all others.
func (l LinkInfo) SortPriority() int {
	if !l.HasPriority() {
		return math.MaxInt
	}
	return l.Priority
}

// GatePriority is the priority compared against the depth gate.
func (l LinkInfo) GatePriority() int {
	if !l.HasPriority() {
		return DefaultGatePriority
	}
	return l.Priority
}

// CategorizedLinks groups links by type, preserving discovery order within each type.
type CategorizedLinks map[LinkType][]LinkInfo

func NewCategorizedLinks() CategorizedLinks {
	links := make(CategorizedLinks, len(LinkTypes))
	for _, t := range LinkTypes {
		links[t] = []LinkInfo{}
	}
	return links
}

func (c CategorizedLinks) Add(link LinkInfo) {
	c[link.Type] = append(c[link.Type], link)
}

func (c CategorizedLinks) Count(t LinkType) int {
	return len(c[t])
}

func (c CategorizedLinks) Total() int {
	total := 0
	for _, links := range c {
		total += len(links)
	}
	return total
}
