// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sort"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// =============================================================================
// GROUPED SESSION VIEW
// =============================================================================

// Group labels, in display order.
const (
	GroupToday      = "Today"
	GroupYesterday  = "Yesterday"
	GroupLast7Days  = "Last 7 Days"
	GroupLast30Days = "Last 30 Days"
	GroupOlder      = "Older"
)

// Group is one bucket of the derived session list view.
type Group struct {
	Label    string
	Sessions []api.Session
}

// Grouped buckets the session list by most-recent-update timestamp. The view
// is recomputed on every call; nothing is persisted.
func (s *Store) Grouped() []Group {
	return groupSessions(s.Sessions(), time.Now())
}

// groupSessions sorts newest-first and buckets relative to now. Split out
// for deterministic tests.
func groupSessions(sessions []api.Session, now time.Time) []Group {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfYesterday := startOfToday.AddDate(0, 0, -1)
	sevenDaysAgo := startOfToday.AddDate(0, 0, -7)
	thirtyDaysAgo := startOfToday.AddDate(0, 0, -30)

	buckets := map[string][]api.Session{}
	for _, sess := range sessions {
		label := GroupOlder
		switch {
		case !sess.UpdatedAt.Before(startOfToday):
			label = GroupToday
		case !sess.UpdatedAt.Before(startOfYesterday):
			label = GroupYesterday
		case !sess.UpdatedAt.Before(sevenDaysAgo):
			label = GroupLast7Days
		case !sess.UpdatedAt.Before(thirtyDaysAgo):
			label = GroupLast30Days
		}
		buckets[label] = append(buckets[label], sess)
	}

	var out []Group
	for _, label := range []string{GroupToday, GroupYesterday, GroupLast7Days, GroupLast30Days, GroupOlder} {
		if len(buckets[label]) > 0 {
			out = append(out, Group{Label: label, Sessions: buckets[label]})
		}
	}
	return out
}
