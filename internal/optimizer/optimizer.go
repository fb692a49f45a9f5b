// internal/optimizer/optimizer.go
package optimizer

import (
	"context"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// ChannelStats is the historical delivery record for one channel within
// one category.
type ChannelStats struct {
	Sent      int64
	Delivered int64
	Read      int64
}

// StatsSource supplies per-channel history for a tenant's category.
// Implementations may aggregate from the notification store or from an
// external analytics system; a nil map or missing entries mean no history.
type StatsSource interface {
	ChannelStats(ctx context.Context, tenantID, category string) (map[models.Channel]ChannelStats, error)
}

// ChannelSelector picks the channel to deliver on when the strategy
// leaves the choice to the engine. Selection must be deterministic for
// a given set of inputs and stats.
type ChannelSelector interface {
	SelectChannel(ctx context.Context, tenantID, userID string, candidates []models.Channel, category string) models.Channel
}

// fallbackOrder ranks channels when no delivery history exists.
var fallbackOrder = []models.Channel{
	models.ChannelPush,
	models.ChannelEmail,
	models.ChannelSMS,
	models.ChannelInApp,
	models.ChannelWebhook,
}

// Read rate counts less than delivery rate: a channel that delivers
// reliably beats one that is read occasionally but bounces often.
const readRateWeight = 0.3

// minSampleSize guards against ranking on a handful of sends.
const minSampleSize = 10

// StatsSelector scores candidates by historical delivery and read rates.
type StatsSelector struct {
	source StatsSource
	logger logger.Logger
}

func NewStatsSelector(source StatsSource, log logger.Logger) *StatsSelector {
	return &StatsSelector{source: source, logger: log}
}

// SelectChannel returns the best-scoring candidate, or the first candidate
// in fallback order when history is absent or unavailable. An empty
// candidate list yields the empty channel; callers validate beforehand.
func (s *StatsSelector) SelectChannel(ctx context.Context, tenantID, userID string, candidates []models.Channel, category string) models.Channel {
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	var stats map[models.Channel]ChannelStats
	if s.source != nil {
		var err error
		stats, err = s.source.ChannelStats(ctx, tenantID, category)
		if err != nil {
			s.logger.Warn("channel stats unavailable, using fallback order", map[string]interface{}{
				"tenant_id": tenantID,
				"category":  category,
				"error":     err.Error(),
			})
			stats = nil
		}
	}

	best := models.Channel("")
	bestScore := -1.0
	for _, c := range candidates {
		sc, ok := score(stats[c])
		if ok && sc > bestScore {
			best = c
			bestScore = sc
		}
	}
	if best != "" {
		return best
	}
	return fallback(candidates)
}

// score returns the weighted rate for the stats, and false when the
// sample is too small to rank on.
func score(st ChannelStats) (float64, bool) {
	if st.Sent < minSampleSize {
		return 0, false
	}
	deliveryRate := float64(st.Delivered) / float64(st.Sent)
	readRate := 0.0
	if st.Delivered > 0 {
		readRate = float64(st.Read) / float64(st.Delivered)
	}
	return (1-readRateWeight)*deliveryRate + readRateWeight*readRate, true
}

func fallback(candidates []models.Channel) models.Channel {
	for _, preferred := range fallbackOrder {
		for _, c := range candidates {
			if c == preferred {
				return c
			}
		}
	}
	return candidates[0]
}

// StaticStats is a StatsSource over a fixed map, used in tests and as a
// seed policy before analytics backfill exists.
type StaticStats map[string]map[models.Channel]ChannelStats

func (s StaticStats) ChannelStats(ctx context.Context, tenantID, category string) (map[models.Channel]ChannelStats, error) {
	return s[tenantID+"/"+category], nil
}
