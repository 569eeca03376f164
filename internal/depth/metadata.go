package depth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/media"
)

// MetadataPublisher sends the calibration JSON (spec.md §3) on the
// metadata track once per depth keyframe, one stream per update with
// an incrementing group sequence — modeled directly on the teacher's
// distribution/moq_session.go writeStatsLoop, which uses the same
// one-stream-per-update shape for its stats track.
type MetadataPublisher struct {
	groupN uint64
}

// PublishOnce opens a new group, writes meta as a single JSON frame,
// and closes the group.
func (mp *MetadataPublisher) PublishOnce(ctx context.Context, rs *moqsession.RequestedSubscriber, meta media.DepthMetadata) error {
	gw, err := rs.OpenGroup(ctx, mp.groupN)
	if err != nil {
		return fmt.Errorf("depth: open metadata group: %w", err)
	}
	mp.groupN++
	defer gw.Close()

	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("depth: marshal metadata: %w", err)
	}
	return gw.WriteFrame(b)
}
