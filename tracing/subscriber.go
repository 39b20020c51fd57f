package tracing

// Subscriber is the fixed fan-out target for every tracing event. The
// full set of callbacks mirrors the network protocol's event tag
// enumeration, so a Subscriber can always be rendered to the wire
// format without loss.
//
// Implementations must tolerate nested/re-entrant calls on the same
// goroutine: emitting a span or log message from inside a callback is
// allowed.
type Subscriber interface {
	OnStart(timeNanos uint64)
	OnFinish(timeNanos uint64)

	OnRegisterThread(timeNanos uint64, threadID uint64)
	OnUnregisterThread(timeNanos uint64, threadID uint64)

	OnCreateCallStack(timeNanos uint64, stackID uint64)
	OnDestroyCallStack(timeNanos uint64, stackID uint64)
	OnUnblockCallStack(timeNanos uint64, stackID uint64)
	OnSuspendCallStack(timeNanos uint64, stackID uint64, markBlocked bool)
	OnResumeCallStack(timeNanos uint64, stackID uint64)

	OnEnterSpan(timeNanos uint64, info *EventInfo, message string)
	OnExitSpan(timeNanos uint64, info *EventInfo, isUnwinding bool)
	OnLogMessage(timeNanos uint64, info *EventInfo, message string)
	OnDeclareEventInfo(info *EventInfo)

	OnStartThread(timeNanos uint64, threadID uint64)
	OnStopThread(timeNanos uint64, threadID uint64)
	OnLoadImage(timeNanos uint64, path string, base, size uint64)
	OnUnloadImage(timeNanos uint64, base uint64)
	OnContextSwitch(timeNanos uint64, threadID uint64)
	OnThreadWakeup(timeNanos uint64, threadID uint64)
	OnCallStackSample(timeNanos uint64, threadID uint64, frames []uint64)
}

// NopSubscriber implements Subscriber with no-op methods, embeddable by
// subscribers that only care about a handful of events.
type NopSubscriber struct{}

func (NopSubscriber) OnStart(uint64)                                 {}
func (NopSubscriber) OnFinish(uint64)                                {}
func (NopSubscriber) OnRegisterThread(uint64, uint64)                {}
func (NopSubscriber) OnUnregisterThread(uint64, uint64)              {}
func (NopSubscriber) OnCreateCallStack(uint64, uint64)               {}
func (NopSubscriber) OnDestroyCallStack(uint64, uint64)              {}
func (NopSubscriber) OnUnblockCallStack(uint64, uint64)              {}
func (NopSubscriber) OnSuspendCallStack(uint64, uint64, bool)        {}
func (NopSubscriber) OnResumeCallStack(uint64, uint64)               {}
func (NopSubscriber) OnEnterSpan(uint64, *EventInfo, string)         {}
func (NopSubscriber) OnExitSpan(uint64, *EventInfo, bool)            {}
func (NopSubscriber) OnLogMessage(uint64, *EventInfo, string)        {}
func (NopSubscriber) OnDeclareEventInfo(*EventInfo)                  {}
func (NopSubscriber) OnStartThread(uint64, uint64)                   {}
func (NopSubscriber) OnStopThread(uint64, uint64)                    {}
func (NopSubscriber) OnLoadImage(uint64, string, uint64, uint64)     {}
func (NopSubscriber) OnUnloadImage(uint64, uint64)                   {}
func (NopSubscriber) OnContextSwitch(uint64, uint64)                 {}
func (NopSubscriber) OnThreadWakeup(uint64, uint64)                  {}
func (NopSubscriber) OnCallStackSample(uint64, uint64, []uint64)     {}
