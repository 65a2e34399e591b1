package directory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/campusdesk/desk/internal/types"
)

// Filter narrows and orders a thread listing.
type Filter struct {
	Tag   types.StatusTag
	Order types.DateOrder
	// Match is a case-insensitive title glob. Text without wildcards matches
	// anywhere in the title.
	Match string

	compiled glob.Glob
}

// NewFilter parses raw flag values.
func NewFilter(tag, order, match string) (Filter, error) {
	var filter Filter
	if strings.TrimSpace(tag) != "" {
		parsed, err := types.ParseStatusTag(tag)
		if err != nil {
			return Filter{}, err
		}
		filter.Tag = parsed
	}
	parsedOrder, err := types.ParseDateOrder(order)
	if err != nil {
		return Filter{}, err
	}
	filter.Order = parsedOrder
	filter.Match = strings.TrimSpace(match)
	if err := filter.compile(); err != nil {
		return Filter{}, err
	}
	return filter, nil
}

func (f *Filter) compile() error {
	if f.Match == "" || f.compiled != nil {
		return nil
	}
	pattern := strings.ToLower(f.Match)
	if !strings.ContainsAny(pattern, "*?[{") {
		pattern = "*" + pattern + "*"
	}
	compiled, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid match pattern %q: %w", f.Match, err)
	}
	f.compiled = compiled
	return nil
}

// Matches reports whether thread passes the tag and title filters.
func (f Filter) Matches(thread types.Thread) bool {
	if f.Tag != "" && thread.Tag != f.Tag {
		return false
	}
	if f.Match == "" {
		return true
	}
	title := strings.ToLower(thread.Title)
	if f.compiled != nil {
		return f.compiled.Match(title)
	}
	return strings.Contains(title, strings.ToLower(f.Match))
}

// Apply returns the matching threads sorted by CreatedAt per Order. The
// input is not modified.
func (f Filter) Apply(threads []types.Thread) []types.Thread {
	_ = f.compile()
	out := make([]types.Thread, 0, len(threads))
	for _, thread := range threads {
		if f.Matches(thread) {
			out = append(out, thread)
		}
	}
	SortThreads(out, f.Order)
	return out
}

// SortThreads orders threads in place; RECENT (the default) is newest first.
func SortThreads(threads []types.Thread, order types.DateOrder) {
	sort.SliceStable(threads, func(i, j int) bool {
		return createdBefore(threads[i].CreatedAt, threads[j].CreatedAt, order)
	})
}

// ApplyPosts filters and sorts board posts like Apply.
func (f Filter) ApplyPosts(posts []types.BoardPost) []types.BoardPost {
	_ = f.compile()
	out := make([]types.BoardPost, 0, len(posts))
	for _, post := range posts {
		if f.Matches(post.Thread) {
			out = append(out, post)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdBefore(out[i].CreatedAt, out[j].CreatedAt, f.Order)
	})
	return out
}

func createdBefore(a, b types.Timestamp, order types.DateOrder) bool {
	if order == types.OrderOldest {
		return a.Before(b.Time)
	}
	return a.After(b.Time)
}
