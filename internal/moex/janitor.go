package moex

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically sweeps expired cache entries and logs hit/miss
// counters. It is a no-op when caching is disabled.
type Janitor struct {
	cron  *cron.Cron
	cache *Cache
	log   zerolog.Logger
}

// NewJanitor creates a janitor for cache. Pass the schedule in cron
// syntax, e.g. "@every 30s".
func NewJanitor(cache *Cache, schedule string, log zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:  cron.New(),
		cache: cache,
		log:   log.With().Str("component", "cache-janitor").Logger(),
	}
	if cache == nil {
		return j, nil
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the sweep schedule.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) sweep() {
	removed := j.cache.SweepExpired()
	hits, misses := j.cache.Stats()
	j.log.Debug().
		Int("removed", removed).
		Int("entries", j.cache.Len()).
		Int64("hits", hits).
		Int64("misses", misses).
		Msg("Cache sweep completed")
}
