package sink

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// LogAlertLog records alerts to the structured log and keeps a bounded
// in-memory tail for the read API.
type LogAlertLog struct {
	mu   sync.Mutex
	tail []Alert
	max  int
}

func NewLogAlertLog(max int) *LogAlertLog {
	if max <= 0 {
		max = 256
	}
	return &LogAlertLog{max: max}
}

func (l *LogAlertLog) Emit(_ context.Context, a Alert) error {
	log.Warn().
		Str("campaign_id", a.CampaignID).
		Str("instance_id", a.InstanceID).
		Str("wallet", a.Wallet).
		Msg(a.Message)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tail = append(l.tail, a)
	if len(l.tail) > l.max {
		l.tail = l.tail[len(l.tail)-l.max:]
	}
	return nil
}

func (l *LogAlertLog) Recent() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Alert(nil), l.tail...)
}
