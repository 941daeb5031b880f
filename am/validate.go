package am

import "github.com/teranos/logtap/errors"

// Validate checks that the configuration is valid.
// Batch sizes and limits of 0 mean "use the default"; negatives are rejected.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.UploadsPerMinute < 0 {
		return errors.Newf("server.uploads_per_minute must be >= 0, got %d", c.Server.UploadsPerMinute)
	}

	if c.Scanner.MemoryBatchSize < 0 {
		return errors.Newf("scanner.memory_batch_size must be >= 0, got %d", c.Scanner.MemoryBatchSize)
	}
	if c.Scanner.StoredBatchSize < 0 {
		return errors.Newf("scanner.stored_batch_size must be >= 0, got %d", c.Scanner.StoredBatchSize)
	}
	if c.Scanner.StreamChunkSize < 0 {
		return errors.Newf("scanner.stream_chunk_size must be >= 0, got %d", c.Scanner.StreamChunkSize)
	}
	if c.Scanner.PreviewLimit < 0 {
		return errors.Newf("scanner.preview_limit must be >= 0, got %d", c.Scanner.PreviewLimit)
	}
	if c.Scanner.EngineParallelism < 0 {
		return errors.Newf("scanner.engine_parallelism must be >= 0, got %d", c.Scanner.EngineParallelism)
	}

	switch c.Scanner.Fanout {
	case "", FanoutTee, FanoutBuffer:
	default:
		return errors.WithHintf(
			errors.Newf("scanner.fanout must be %q or %q, got %q", FanoutTee, FanoutBuffer, c.Scanner.Fanout),
			"use %q unless stored datasets are small enough to buffer per batch", FanoutTee)
	}

	return nil
}
