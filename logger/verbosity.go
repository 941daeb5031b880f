package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
//
// These levels control WHAT categories of output are shown, not just log severity.
//
// Example usage:
//
//	if logger.ShouldOutput(verbosity, logger.OutputBatchDetail) {
//	    fmt.Printf("batch %d: %d rules\n", i, n)
//	}
const (
	VerbosityUser  = 0 // No flags: hits, errors and the final summary only
	VerbosityInfo  = 1 // -v: + progress, startup, engine status
	VerbosityDebug = 2 // -vv: + per-batch detail, timing, config details
	VerbosityTrace = 3 // -vvv: + SQL, engine calls, protocol messages
)

// VerbosityToLevel maps verbosity flags (-v, -vv, etc.) to zap log levels
//
// Mapping:
//
//	0 (none)  -> WarnLevel  (errors and warnings only)
//	1 (-v)    -> InfoLevel  (+ informational messages)
//	2+ (-vv)  -> DebugLevel (+ debug messages)
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota // Hits and rule errors
	OutputErrors                        // Errors with hints
	OutputUserStatus                    // Final scan summary

	// Level 1 (-v)
	OutputProgress    // Batch progress ("Scanning 100/120")
	OutputStartup     // Banners, engine loaded
	OutputEngineStats // Engine version, memory

	// Level 2 (-vv)
	OutputBatchDetail // Per-batch timing and sizes
	OutputConfig      // Config values loaded/applied

	// Level 3 (-vvv)
	OutputSQLQueries // Blob store statements
	OutputProtocol   // Every protocol message in/out
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:     VerbosityUser,
	OutputErrors:      VerbosityUser,
	OutputUserStatus:  VerbosityUser,
	OutputProgress:    VerbosityInfo,
	OutputStartup:     VerbosityInfo,
	OutputEngineStats: VerbosityInfo,
	OutputBatchDetail: VerbosityDebug,
	OutputConfig:      VerbosityDebug,
	OutputSQLQueries:  VerbosityTrace,
	OutputProtocol:    VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}

// LevelName returns a human-readable name for verbosity level
func LevelName(verbosity int) string {
	switch {
	case verbosity < VerbosityUser:
		return "Unknown"
	case verbosity == VerbosityUser:
		return "User"
	case verbosity == VerbosityInfo:
		return "Info (-v)"
	case verbosity == VerbosityDebug:
		return "Debug (-vv)"
	default:
		return "Trace (-vvv)"
	}
}
