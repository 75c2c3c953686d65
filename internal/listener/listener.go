package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/storage"
)

// ListenAndRefresh blocks on Postgres LISTEN for campaign changes and
// rebuilds the registry (and anything downstream via refresh) on each
// notification. Bursts are debounced.
func ListenAndRefresh(ctx context.Context, st *storage.Store, reg *campaign.Registry, channel string, baseBackoff time.Duration, refresh func()) {
	conn, err := st.PgxPool().Acquire(ctx)
	if err != nil {
		log.Error().Err(err).Msg("acquire conn for listen")
		return
	}
	defer conn.Release()

	if channel == "" {
		channel = st.ListenChannel()
	}
	if _, err = conn.Exec(ctx, "LISTEN "+channel); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("listen")
		return
	}
	log.Info().Str("channel", channel).Msg("listening for campaign changes")

	var lastRefresh time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener stopped")
			return
		default:
			ntf, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := jitter(baseBackoff)
				log.Error().Err(err).Dur("retry_in", backoff).Msg("notify wait error")
				time.Sleep(backoff)
				continue
			}
			if time.Since(lastRefresh) < 200*time.Millisecond {
				continue // debounce burst of notifications
			}
			lastRefresh = time.Now()
			log.Info().Str("channel", ntf.Channel).Msg("campaign change; rebuilding registry")
			campaigns, err := st.LoadEnabled(ctx)
			if err != nil {
				log.Error().Err(err).Msg("reload enabled campaigns")
				continue
			}
			reg.Rebuild(campaigns)
			if refresh != nil {
				refresh()
			}
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
