package usecase

import (
	"context"
	"math"
	"strconv"

	"github.com/aviary-social/aviary"
	"github.com/aviary-social/aviary/internal/domain"
)

// FeedUsecase answers paginated reads against one recipient's feed.
type FeedUsecase struct {
	feeds FeedRepository
}

func NewFeedUsecase(feeds FeedRepository) *FeedUsecase {
	return &FeedUsecase{feeds: feeds}
}

// GetFeedSkeleton returns up to limit entries of feed with timestamps
// strictly below cursor, newest first, plus the cursor for the next page.
// An empty cursor starts from the newest entry. Limits outside [0, 100] are
// clamped to 100; a limit of exactly 0 is honored and yields an empty page.
func (uc *FeedUsecase) GetFeedSkeleton(ctx context.Context, feed, cursor string, limit int) (aviary.FeedSkeleton, error) {
	before := int64(math.MaxInt64)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return aviary.FeedSkeleton{}, domain.InvalidRequestError{Reason: "malformed cursor"}
		}
		before = parsed
	}

	if limit < 0 || limit > domain.DefaultPageLimit {
		limit = domain.DefaultPageLimit
	}

	skeleton := aviary.FeedSkeleton{Feed: []aviary.SkeletonItem{}}
	if limit == 0 {
		return skeleton, nil
	}

	entries, err := uc.feeds.ListPage(ctx, feed, before, limit)
	if err != nil {
		return aviary.FeedSkeleton{}, err
	}

	for _, entry := range entries {
		item := aviary.SkeletonItem{Post: entry.PostURI}
		if entry.RepostURI != nil {
			item.Reason = &aviary.SkeletonReasonRepost{
				Type:   aviary.ReasonTypeRepost,
				Repost: *entry.RepostURI,
			}
		}
		skeleton.Feed = append(skeleton.Feed, item)
	}

	if len(entries) > 0 {
		skeleton.Cursor = strconv.FormatInt(entries[len(entries)-1].TS, 10)
	}
	return skeleton, nil
}
