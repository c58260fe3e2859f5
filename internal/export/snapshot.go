// Package export builds registry snapshots and pushes them to the configured
// operators, both on a recurring schedule and on demand from the admin panel.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"tg_community_bot/internal/domain"
)

// Snapshot renders the id list as newline-separated decimal ids, UTF-8, no
// header or trailer. This is the only artifact format the bot owns.
func Snapshot(ids []int64) []byte {
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, strconv.FormatInt(id, 10))
	}

	return []byte(strings.Join(lines, "\n"))
}

// SummaryCaption renders the active-user total and the per-category buckets
// in reporting order.
func SummaryCaption(total int64, byCategory map[int]int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active users: %d\n", total)
	for _, code := range domain.KnownCategories {
		fmt.Fprintf(&b, "%s: %d\n", domain.CategoryLabel(code), byCategory[code])
	}

	return strings.TrimRight(b.String(), "\n")
}
