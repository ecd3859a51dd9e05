package ops

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dayzmon/internal/monitor"
)

// SnapshotReader is the read side of monitor.Cache.
type SnapshotReader interface {
	Load() *monitor.Snapshot
}

// Collector exposes the cached snapshot and pipeline counters. Metrics are
// built on each scrape from the cache; nothing is kept between scrapes.
type Collector struct {
	cache SnapshotReader
	stats *monitor.Stats
	now   func() time.Time

	players     *prometheus.Desc
	maxPlayers  *prometheus.Desc
	queue       *prometheus.Desc
	snapshotAge *prometheus.Desc
	polls       *prometheus.Desc
	syncs       *prometheus.Desc
}

func NewCollector(cache SnapshotReader, stats *monitor.Stats) *Collector {
	return &Collector{
		cache: cache,
		stats: stats,
		now:   time.Now,

		players:     prometheus.NewDesc("dayzmon_players", "Players online in the latest snapshot.", nil, nil),
		maxPlayers:  prometheus.NewDesc("dayzmon_max_players", "Player slots in the latest snapshot.", nil, nil),
		queue:       prometheus.NewDesc("dayzmon_queue", "Players waiting in the join queue (absent when the server reports none).", nil, nil),
		snapshotAge: prometheus.NewDesc("dayzmon_snapshot_age_seconds", "Seconds since the latest snapshot was observed.", nil, nil),
		polls:       prometheus.NewDesc("dayzmon_poll_total", "Poll cycles by result.", []string{"result"}, nil),
		syncs:       prometheus.NewDesc("dayzmon_sync_total", "Display sync attempts by result.", []string{"result"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.players
	ch <- c.maxPlayers
	ch <- c.queue
	ch <- c.snapshotAge
	ch <- c.polls
	ch <- c.syncs
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if s := c.cache.Load(); s != nil {
		ch <- prometheus.MustNewConstMetric(c.players, prometheus.GaugeValue, float64(s.Players))
		ch <- prometheus.MustNewConstMetric(c.maxPlayers, prometheus.GaugeValue, float64(s.MaxPlayers))
		if s.PlayersInQueue != nil {
			ch <- prometheus.MustNewConstMetric(c.queue, prometheus.GaugeValue, float64(*s.PlayersInQueue))
		}
		if !s.Observed.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.snapshotAge, prometheus.GaugeValue, c.now().Sub(s.Observed).Seconds())
		}
	}
	if c.stats == nil {
		return
	}
	for result, n := range c.stats.Polls() {
		ch <- prometheus.MustNewConstMetric(c.polls, prometheus.CounterValue, float64(n), result)
	}
	for result, n := range c.stats.Syncs() {
		ch <- prometheus.MustNewConstMetric(c.syncs, prometheus.CounterValue, float64(n), result)
	}
}
