package crawler

import (
	"fmt"
	"time"
)

// Config captures the knobs that shape a crawl run. It is decoupled from
// Viper so the orchestrator can be configured directly in tests.
type Config struct {
	// StartPage is the first directory page walked on a fresh crawl.
	StartPage int
	// EndPage caps discovery; zero walks to the resolved last page.
	EndPage int
	// DefaultTotalPages bounds discovery when pagination cannot be read.
	DefaultTotalPages int
	// Concurrency is the number of record fetches allowed in flight.
	Concurrency int
	// RequestDelay paces every request after its slot is acquired.
	RequestDelay time.Duration
	// RetryFailedDelay precedes each same-run retry of a failed URL or page.
	RetryFailedDelay time.Duration
	// DiscoveryCheckpointInterval is the directory page count between saves.
	DiscoveryCheckpointInterval int
	// CheckpointInterval is the extracted record count between saves.
	CheckpointInterval int
	// ProgressInterval is the processed URL count between progress log lines.
	ProgressInterval int
}

// DefaultConfig returns the settings that keep the target site happy.
func DefaultConfig() Config {
	return Config{
		StartPage:                   1,
		DefaultTotalPages:           1485,
		Concurrency:                 2,
		RequestDelay:                time.Second,
		RetryFailedDelay:            2 * time.Second,
		DiscoveryCheckpointInterval: 10,
		CheckpointInterval:          25,
		ProgressInterval:            10,
	}
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.StartPage < 1 {
		return fmt.Errorf("start page must be >= 1")
	}
	if c.EndPage < 0 {
		return fmt.Errorf("end page must be >= 0")
	}
	if c.EndPage > 0 && c.EndPage < c.StartPage {
		return fmt.Errorf("end page %d is before start page %d", c.EndPage, c.StartPage)
	}
	if c.DefaultTotalPages <= 0 {
		return fmt.Errorf("default total pages must be > 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.RequestDelay < 0 || c.RetryFailedDelay < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if c.DiscoveryCheckpointInterval <= 0 || c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint intervals must be > 0")
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be > 0")
	}
	return nil
}
