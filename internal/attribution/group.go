package attribution

import (
	"fmt"
	"sort"
	"strings"
)

// GroupDimension is a presentation grouping of allocations.
type GroupDimension string

const (
	GroupBySource   GroupDimension = "source"
	GroupByMedium   GroupDimension = "medium"
	GroupByCampaign GroupDimension = "campaign"
	GroupByPage     GroupDimension = "page"
)

// ParseGroupDimension validates a grouping name.
func ParseGroupDimension(s string) (GroupDimension, error) {
	switch d := GroupDimension(strings.ToLower(strings.TrimSpace(s))); d {
	case GroupBySource, GroupByMedium, GroupByCampaign, GroupByPage:
		return d, nil
	}
	return "", fmt.Errorf("unknown group dimension %q", s)
}

// Column is the allocation column holding the dimension.
func (d GroupDimension) Column() string {
	return string(d)
}

// GroupedShare is the sum of allocations sharing a dimension value.
type GroupedShare struct {
	Value  string `json:"value"`
	Amount int64  `json:"amount"`
	Count  int64  `json:"count"`
}

// Value returns the allocation's value for the dimension.
func (a Allocation) Value(by GroupDimension) string {
	switch by {
	case GroupBySource:
		return a.Source
	case GroupByMedium:
		return a.Medium
	case GroupByCampaign:
		return a.Campaign
	case GroupByPage:
		return a.Page
	}
	return ""
}

// GroupBy sums allocations per dimension value, largest amount first.
func GroupBy(allocs []Allocation, by GroupDimension) []GroupedShare {
	index := make(map[string]int)
	var groups []GroupedShare
	for _, a := range allocs {
		value := a.Value(by)
		if value == "" {
			value = "(none)"
		}
		i, ok := index[value]
		if !ok {
			i = len(groups)
			index[value] = i
			groups = append(groups, GroupedShare{Value: value})
		}
		groups[i].Amount += a.RevenueShare
		groups[i].Count++
	}
	SortGroups(groups)
	return groups
}

// SortGroups orders by amount descending, then value ascending.
func SortGroups(groups []GroupedShare) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Amount != groups[j].Amount {
			return groups[i].Amount > groups[j].Amount
		}
		return groups[i].Value < groups[j].Value
	})
}
