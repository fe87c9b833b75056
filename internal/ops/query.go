package ops

import (
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/session"
)

// QueryInput contains parameters for SetQuery. Nil fields keep their
// current value.
type QueryInput struct {
	// Tags replaces the tag filter. A non-nil empty slice clears it.
	Tags     []string
	Text     *string
	Category *string
}

// QueryOutput is the query slot after the update.
type QueryOutput struct {
	TagFilter          []string `json:"tag_filter"`
	ActiveTag          string   `json:"active_tag,omitempty"`
	MostRecentTag      string   `json:"most_recent_tag,omitempty"`
	MostRecentCategory string   `json:"most_recent_category,omitempty"`
	TextFilter         string   `json:"text_filter,omitempty"`
}

// SetQuery updates the query slot. Tags are normalized; the first tag is the
// active tag and is remembered as the most recent tag.
func (b *Browser) SetQuery(input QueryInput) *QueryOutput {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := session.QueryRecord{}
	if cur := b.cache.Query(); cur != nil {
		next = *cur
	}
	if input.Tags != nil {
		next.TagFilter = library.NormalizeTags(input.Tags)
		if active := next.ActiveTag(); active != "" {
			next.MostRecentTag = active
		}
	}
	if input.Text != nil {
		next.TextFilter = strings.TrimSpace(*input.Text)
	}
	if input.Category != nil {
		next.MostRecentCategory = strings.TrimSpace(*input.Category)
	}
	b.cache.Set(&next)

	b.logger.Debug("query updated",
		zap.Strings("tags", next.TagFilter),
		zap.String("text", next.TextFilter),
	)
	return queryOutput(&next)
}

// Query returns the current query slot.
func (b *Browser) Query() *QueryOutput {
	return queryOutput(b.cache.Query())
}

func queryOutput(q *session.QueryRecord) *QueryOutput {
	out := &QueryOutput{TagFilter: []string{}}
	if q == nil {
		return out
	}
	if q.TagFilter != nil {
		out.TagFilter = q.TagFilter
	}
	out.ActiveTag = q.ActiveTag()
	out.MostRecentTag = q.MostRecentTag
	out.MostRecentCategory = q.MostRecentCategory
	out.TextFilter = q.TextFilter
	return out
}
