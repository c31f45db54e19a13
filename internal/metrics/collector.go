package metrics

import (
	"time"

	"media-library/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current library totals
type Stats struct {
	TotalPhotos int
	TotalVideos int
	TotalBytes  int64
	TrashItems  int
	DBFileSizes map[string]int64 // keyed by "main", "wal", "shm"
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	MediaFilesTotal.WithLabelValues("photo").Set(float64(stats.TotalPhotos))
	MediaFilesTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	MediaBytesTotal.Set(float64(stats.TotalBytes))
	TrashItemsTotal.Set(float64(stats.TrashItems))
	for file, size := range stats.DBFileSizes {
		DBSizeBytes.WithLabelValues(file).Set(float64(size))
	}

	logging.Debug("Metrics collected: photos=%d, videos=%d, trash=%d",
		stats.TotalPhotos, stats.TotalVideos, stats.TrashItems)
}
