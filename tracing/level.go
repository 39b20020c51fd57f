// Package tracing implements per-thread call stacks with nested spans,
// level filtering, a hash-indexed event-info cache, and fan-out to a
// fixed set of subscribers established at construction.
package tracing

import "github.com/joeycumines/logiface"

// Level reuses the logiface severity scale (the syslog levels plus
// LevelTrace) so a Subscriber can be backed directly by a logiface
// logger without a translation layer.
type Level = logiface.Level

const (
	LevelDisabled       = logiface.LevelDisabled
	LevelEmergency      = logiface.LevelEmergency
	LevelAlert          = logiface.LevelAlert
	LevelCritical       = logiface.LevelCritical
	LevelError          = logiface.LevelError
	LevelWarning        = logiface.LevelWarning
	LevelNotice         = logiface.LevelNotice
	LevelInformational  = logiface.LevelInformational
	LevelDebug          = logiface.LevelDebug
	LevelTrace          = logiface.LevelTrace
)
