package repository

import (
	"sort"

	"github.com/raimediatech/kingsbuilder/internal/domain"
)

// AggregatePageStats folds the views of a single page into stats. Unique
// views count distinct visitor IPs; views without an IP are not counted as unique.
func AggregatePageStats(views []domain.PageView) *domain.PageStats {
	stats := &domain.PageStats{DailyViews: []domain.DailyViews{}}
	visitors := make(map[string]struct{})
	daily := make(map[string]int64)

	for _, v := range views {
		stats.TotalViews++
		if v.IP != "" {
			visitors[v.IP] = struct{}{}
		}
		daily[domain.DayKey(v.Timestamp)]++
	}
	stats.UniqueViews = int64(len(visitors))

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		stats.DailyViews = append(stats.DailyViews, domain.DailyViews{Date: day, Views: daily[day]})
	}
	return stats
}

// RankPages orders per-handle view counts descending, ties by handle, and
// keeps at most limit entries.
func RankPages(counts map[string]int64, limit int) []domain.TopPage {
	top := make([]domain.TopPage, 0, len(counts))
	for handle, views := range counts {
		top = append(top, domain.TopPage{Handle: handle, Views: views})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Views != top[j].Views {
			return top[i].Views > top[j].Views
		}
		return top[i].Handle < top[j].Handle
	})
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	return top
}

// SortByUpdated orders pages most recently updated first.
func SortByUpdated(pages []*domain.Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].UpdatedAt.After(pages[j].UpdatedAt)
	})
}
