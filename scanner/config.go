package scanner

import (
	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/fanout"
)

// Config holds the tunables of a scan session
type Config struct {
	MemoryBatchSize int
	StoredBatchSize int
	PreviewLimit    int
	Fanout          fanout.Func
}

// DefaultConfig returns the built-in batch sizes with the incremental tee
func DefaultConfig() Config {
	return Config{
		MemoryBatchSize: am.DefaultMemoryBatchSize,
		StoredBatchSize: am.DefaultStoredBatchSize,
		PreviewLimit:    am.DefaultPreviewLimit,
	}
}

// ConfigFromAm builds a Config from the scanner section of am.toml
func ConfigFromAm(sc am.ScannerConfig) (Config, error) {
	fn, err := fanout.ForStrategy(sc.Fanout)
	if err != nil {
		return Config{}, errors.Wrap(err, "scanner.fanout")
	}
	return Config{
		MemoryBatchSize: sc.MemoryBatchSize,
		StoredBatchSize: sc.StoredBatchSize,
		PreviewLimit:    sc.PreviewLimit,
		Fanout:          fn,
	}.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.MemoryBatchSize <= 0 {
		c.MemoryBatchSize = am.DefaultMemoryBatchSize
	}
	if c.StoredBatchSize <= 0 {
		c.StoredBatchSize = am.DefaultStoredBatchSize
	}
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = am.DefaultPreviewLimit
	}
	if c.Fanout == nil {
		c.Fanout, _ = fanout.ForStrategy(am.FanoutTee)
	}
	return c
}

// ConcurrencyLimit is the batch size for a dataset. Every rule of a stored
// batch holds its own stream copy, so stored batches are smaller.
func (c Config) ConcurrencyLimit(ref DatasetRef) int {
	c = c.withDefaults()
	if ref.Kind() == DatasetStored {
		return c.StoredBatchSize
	}
	return c.MemoryBatchSize
}

// partition splits rules into contiguous batches of at most size rules
func partition(rules []Rule, size int) [][]Rule {
	if size <= 0 {
		size = 1
	}
	batches := make([][]Rule, 0, (len(rules)+size-1)/size)
	for start := 0; start < len(rules); start += size {
		end := min(start+size, len(rules))
		batches = append(batches, rules[start:end])
	}
	return batches
}
