package stderrsub

import "github.com/fimoengine/fimo/tracing"

const ansiReset = "\x1b[0m"

func colorFor(level tracing.Level) string {
	switch {
	case level <= tracing.LevelCritical:
		return "\x1b[1;31m" // bold red
	case level == tracing.LevelError:
		return "\x1b[31m" // red
	case level == tracing.LevelWarning:
		return "\x1b[33m" // yellow
	case level == tracing.LevelNotice:
		return "\x1b[36m" // cyan
	case level == tracing.LevelInformational:
		return "\x1b[32m" // green
	case level == tracing.LevelDebug:
		return "\x1b[34m" // blue
	default:
		return "\x1b[90m" // bright black (trace and anything dimmer)
	}
}
