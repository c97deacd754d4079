package domain

import "time"

// DefaultStatsWindowDays is the reporting window used when none is given.
const DefaultStatsWindowDays = 30

// PageView is an append-only storefront view record.
type PageView struct {
	Tenant    string    `json:"shop"`
	Handle    string    `json:"handle"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// DailyViews is the view count of a single UTC day.
type DailyViews struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// PageStats aggregates the views of one page over a window.
type PageStats struct {
	TotalViews  int64        `json:"totalViews"`
	UniqueViews int64        `json:"uniqueViews"`
	DailyViews  []DailyViews `json:"dailyViews"`
}

// TopPage is a page ranked by views.
type TopPage struct {
	Handle string `json:"handle"`
	Title  string `json:"title"`
	Views  int64  `json:"views"`
}

// ShopStats aggregates the views of all pages of a shop over a window.
type ShopStats struct {
	TotalPages int64     `json:"totalPages"`
	TotalViews int64     `json:"totalViews"`
	TopPages   []TopPage `json:"topPages"`
}

// WindowStart returns the inclusive start of a window of days ending at now.
func WindowStart(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultStatsWindowDays
	}
	return now.AddDate(0, 0, -days)
}

// DayKey formats a timestamp as its UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
