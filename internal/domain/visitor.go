package domain

import (
	"time"
)

// DateLayout is the calendar-day format stored in VisitorRecord.LastVisitDate
const DateLayout = "2006-01-02"

// VisitorRecord is the per-client ledger entry. Timestamps are unix seconds so that
// documents written by older deployments decode without conversion.
type VisitorRecord struct {
	FirstVisit    int64  `json:"first_visit"`
	LastVisit     int64  `json:"last_visit"`
	LastPageView  int64  `json:"last_page_view"`
	LastVisitDate string `json:"last_visit_date"`
	VisitCount    int    `json:"visit_count"`
	LastSession   int64  `json:"last_session"`
}

// VisitorLedger maps client identifiers to their records
type VisitorLedger map[string]*VisitorRecord

// AggregateCounters holds the site-wide totals
type AggregateCounters struct {
	TotalVisitors int64 `json:"total_visitors"`
	TotalViews    int64 `json:"total_views"`
	UpdatedAt     int64 `json:"updated_at"`
}

// PresenceMap maps client identifiers to their last activity (unix seconds)
type PresenceMap map[string]int64

// Prune evicts every entry whose age at now is at least window and reports how many were removed
func (p PresenceMap) Prune(now time.Time, window time.Duration) int {
	return p.evict(now.Unix() - int64(window/time.Second) + 1)
}

// Expire evicts every entry whose age at now exceeds timeout and reports how many were removed
func (p PresenceMap) Expire(now time.Time, timeout time.Duration) int {
	return p.evict(now.Unix() - int64(timeout/time.Second))
}

// evict removes entries last active before cutoff
func (p PresenceMap) evict(cutoff int64) int {
	removed := 0
	for clientID, lastActivity := range p {
		if lastActivity < cutoff {
			delete(p, clientID)
			removed++
		}
	}
	return removed
}

// VisitResult is returned by a recorded visit
type VisitResult struct {
	IsNewVisitor    bool `json:"is_new_visitor"`
	TodayVisitCount int  `json:"today_visit_count"`
}

// StatsSnapshot is the aggregate view served to the display layer
type StatsSnapshot struct {
	TotalVisitors   int64 `json:"total_visitors"`
	TotalViews      int64 `json:"total_views"`
	TodayVisitCount int   `json:"today_visit_count"`
	OnlineUsers     int   `json:"online_users"`
}

// DisplayConfig is the subset of settings the front-end needs to poll and animate
type DisplayConfig struct {
	UpdateIntervalMs int    `json:"update_interval_ms"`
	AnimationSpeed   string `json:"animation_speed"`
}
