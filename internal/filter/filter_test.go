package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendscout/internal/types"
)

var ref = time.Date(2024, 5, 23, 12, 0, 0, 0, time.UTC)

func TestRecent_TenPostScenario(t *testing.T) {
	// 1, 4 and 7 are recent with images; the rest miss either media or a usable time.
	posts := []types.Post{
		{ID: "1", PublishTime: "5分钟前", HasImages: true},
		{ID: "2", PublishTime: "5分钟前"},
		{ID: "3", PublishTime: "未知时间", HasImages: true},
		{ID: "4", PublishTime: "今天 08:00", HasImages: true},
		{ID: "5", PublishTime: "2024-05-01 10:00", HasImages: true},
		{ID: "6", PublishTime: "", HasVideos: true},
		{ID: "7", PublishTime: "昨天 09:00", HasImages: true},
		{ID: "8", PublishTime: "garbage", HasImages: true},
		{ID: "9", PublishTime: "05-20 12:00", HasImages: true},
		{ID: "10", PublishTime: "3小时前"},
	}

	got := Recent(posts, ref)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "4", "7"}, ids(got))
}

func TestRecent_VideoOnlyIsMedia(t *testing.T) {
	got := Recent([]types.Post{{ID: "v", PublishTime: "1小时前", HasVideos: true}}, ref)
	require.Len(t, got, 1)
	assert.Equal(t, ref.Add(-time.Hour), got[0].PublishedAt)
}

func TestRecent_WindowBoundaryInclusive(t *testing.T) {
	posts := []types.Post{
		{ID: "edge", PublishTime: "48小时前", HasImages: true},
		{ID: "past", PublishTime: "49小时前", HasImages: true},
		{ID: "now", PublishTime: "0分钟前", HasImages: true},
	}

	got := Recent(posts, ref)
	assert.Equal(t, []string{"edge", "now"}, ids(got))
}

func TestRecent_DropsFutureTimestamps(t *testing.T) {
	got := Recent([]types.Post{{ID: "f", PublishTime: "今天 18:00", HasImages: true}}, ref)
	assert.Empty(t, got)
}

func TestRecent_DoesNotMutateInput(t *testing.T) {
	posts := []types.Post{{ID: "1", PublishTime: "5分钟前", HasImages: true}}
	_ = Recent(posts, ref)
	assert.True(t, posts[0].PublishedAt.IsZero())
}

func ids(posts []types.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
