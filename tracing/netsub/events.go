package netsub

import (
	"errors"
	"fmt"
)

// EventTag identifies the wire shape of a packed event struct.
type EventTag uint16

const (
	TagStart EventTag = iota
	TagFinish
	TagRegisterThread
	TagUnregisterThread
	TagCreateCallStack
	TagDestroyCallStack
	TagUnblockCallStack
	TagSuspendCallStack
	TagResumeCallStack
	TagEnterSpan
	TagExitSpan
	TagLogMessage
	TagDeclareEventInfo
	TagStartThread
	TagStopThread
	TagLoadImage
	TagUnloadImage
	TagContextSwitch
	TagThreadWakeup
	TagCallStackSample
)

var ErrUnknownEventTag = errors.New("netsub: unknown event tag")

// Event payload shapes, one per EventTag. Every event carries its own
// EventTag (u16) as the first field on the wire; Decode strips it
// before constructing the payload.

type EventStart struct{ Time uint64 }
type EventFinish struct{ Time uint64 }
type EventRegisterThread struct {
	Time     uint64
	ThreadID uint64
}
type EventUnregisterThread struct {
	Time     uint64
	ThreadID uint64
}
type EventCreateCallStack struct {
	Time    uint64
	StackID uint64
}
type EventDestroyCallStack struct {
	Time    uint64
	StackID uint64
}
type EventUnblockCallStack struct {
	Time    uint64
	StackID uint64
}
type EventSuspendCallStack struct {
	Time        uint64
	StackID     uint64
	MarkBlocked bool
}
type EventResumeCallStack struct {
	Time    uint64
	StackID uint64
}
type EventEnterSpan struct {
	Time     uint64
	Name     string
	Target   string
	Scope    string
	FileName string
	Line     uint32
	Level    int8
	Message  string
}
type EventExitSpan struct {
	Time        uint64
	Name        string
	IsUnwinding bool
}
type EventLogMessage struct {
	Time    uint64
	Name    string
	Level   int8
	Message string
}
type EventDeclareEventInfo struct {
	Name     string
	Target   string
	Scope    string
	FileName string
	Line     uint32
	Level    int8
}
type EventStartThread struct {
	Time     uint64
	ThreadID uint64
}
type EventStopThread struct {
	Time     uint64
	ThreadID uint64
}
type EventLoadImage struct {
	Time uint64
	Path string
	Base uint64
	Size uint64
}
type EventUnloadImage struct {
	Time uint64
	Base uint64
}
type EventContextSwitch struct {
	Time     uint64
	ThreadID uint64
}
type EventThreadWakeup struct {
	Time     uint64
	ThreadID uint64
}
type EventCallStackSample struct {
	Time     uint64
	ThreadID uint64
	Frames   []uint64
}

// Encode renders ev (one of the Event* structs above) as a full
// EventTag-prefixed packed struct.
func Encode(ev any) ([]byte, error) {
	w := &byteWriter{}
	switch e := ev.(type) {
	case EventStart:
		w.u16(uint16(TagStart))
		w.u64(e.Time)
	case EventFinish:
		w.u16(uint16(TagFinish))
		w.u64(e.Time)
	case EventRegisterThread:
		w.u16(uint16(TagRegisterThread))
		w.u64(e.Time)
		w.u64(e.ThreadID)
	case EventUnregisterThread:
		w.u16(uint16(TagUnregisterThread))
		w.u64(e.Time)
		w.u64(e.ThreadID)
	case EventCreateCallStack:
		w.u16(uint16(TagCreateCallStack))
		w.u64(e.Time)
		w.u64(e.StackID)
	case EventDestroyCallStack:
		w.u16(uint16(TagDestroyCallStack))
		w.u64(e.Time)
		w.u64(e.StackID)
	case EventUnblockCallStack:
		w.u16(uint16(TagUnblockCallStack))
		w.u64(e.Time)
		w.u64(e.StackID)
	case EventSuspendCallStack:
		w.u16(uint16(TagSuspendCallStack))
		w.u64(e.Time)
		w.u64(e.StackID)
		w.boolean(e.MarkBlocked)
	case EventResumeCallStack:
		w.u16(uint16(TagResumeCallStack))
		w.u64(e.Time)
		w.u64(e.StackID)
	case EventEnterSpan:
		w.u16(uint16(TagEnterSpan))
		w.u64(e.Time)
		w.str(e.Name)
		w.str(e.Target)
		w.str(e.Scope)
		w.str(e.FileName)
		w.u32(e.Line)
		w.u8(uint8(e.Level))
		w.str(e.Message)
	case EventExitSpan:
		w.u16(uint16(TagExitSpan))
		w.u64(e.Time)
		w.str(e.Name)
		w.boolean(e.IsUnwinding)
	case EventLogMessage:
		w.u16(uint16(TagLogMessage))
		w.u64(e.Time)
		w.str(e.Name)
		w.u8(uint8(e.Level))
		w.str(e.Message)
	case EventDeclareEventInfo:
		w.u16(uint16(TagDeclareEventInfo))
		w.str(e.Name)
		w.str(e.Target)
		w.str(e.Scope)
		w.str(e.FileName)
		w.u32(e.Line)
		w.u8(uint8(e.Level))
	case EventStartThread:
		w.u16(uint16(TagStartThread))
		w.u64(e.Time)
		w.u64(e.ThreadID)
	case EventStopThread:
		w.u16(uint16(TagStopThread))
		w.u64(e.Time)
		w.u64(e.ThreadID)
	case EventLoadImage:
		w.u16(uint16(TagLoadImage))
		w.u64(e.Time)
		w.str(e.Path)
		w.u64(e.Base)
		w.u64(e.Size)
	case EventUnloadImage:
		w.u16(uint16(TagUnloadImage))
		w.u64(e.Time)
		w.u64(e.Base)
	case EventContextSwitch:
		w.u16(uint16(TagContextSwitch))
		w.u64(e.Time)
		w.u64(e.ThreadID)
	case EventThreadWakeup:
		w.u16(uint16(TagThreadWakeup))
		w.u64(e.Time)
		w.u64(e.ThreadID)
	case EventCallStackSample:
		w.u16(uint16(TagCallStackSample))
		w.u64(e.Time)
		w.u64(e.ThreadID)
		w.u32(uint32(len(e.Frames)))
		for _, f := range e.Frames {
			w.u64(f)
		}
	default:
		return nil, fmt.Errorf("netsub: unsupported event type %T", ev)
	}
	return w.bytes(), nil
}

// Decode parses one EventTag-prefixed packed struct from b, returning
// the event payload and the number of bytes consumed.
func Decode(b []byte) (ev any, n int, err error) {
	r := newByteReader(b)
	tagV, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	tag := EventTag(tagV)
	switch tag {
	case TagStart:
		t, err := r.u64()
		ev = EventStart{Time: t}
		if err != nil {
			return nil, 0, err
		}
	case TagFinish:
		t, err := r.u64()
		ev = EventFinish{Time: t}
		if err != nil {
			return nil, 0, err
		}
	case TagRegisterThread:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventRegisterThread{Time: t, ThreadID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagUnregisterThread:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventUnregisterThread{Time: t, ThreadID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagCreateCallStack:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventCreateCallStack{Time: t, StackID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagDestroyCallStack:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventDestroyCallStack{Time: t, StackID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagUnblockCallStack:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventUnblockCallStack{Time: t, StackID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagSuspendCallStack:
		t, e1 := r.u64()
		id, e2 := r.u64()
		blk, e3 := r.boolean()
		ev = EventSuspendCallStack{Time: t, StackID: id, MarkBlocked: blk}
		if err := firstErr(e1, e2, e3); err != nil {
			return nil, 0, err
		}
	case TagResumeCallStack:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventResumeCallStack{Time: t, StackID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagEnterSpan:
		t, e1 := r.u64()
		name, e2 := r.str()
		target, e3 := r.str()
		scope, e4 := r.str()
		file, e5 := r.str()
		line, e6 := r.u32()
		lvl, e7 := r.u8()
		msg, e8 := r.str()
		ev = EventEnterSpan{Time: t, Name: name, Target: target, Scope: scope, FileName: file, Line: line, Level: int8(lvl), Message: msg}
		if err := firstErr(e1, e2, e3, e4, e5, e6, e7, e8); err != nil {
			return nil, 0, err
		}
	case TagExitSpan:
		t, e1 := r.u64()
		name, e2 := r.str()
		unw, e3 := r.boolean()
		ev = EventExitSpan{Time: t, Name: name, IsUnwinding: unw}
		if err := firstErr(e1, e2, e3); err != nil {
			return nil, 0, err
		}
	case TagLogMessage:
		t, e1 := r.u64()
		name, e2 := r.str()
		lvl, e3 := r.u8()
		msg, e4 := r.str()
		ev = EventLogMessage{Time: t, Name: name, Level: int8(lvl), Message: msg}
		if err := firstErr(e1, e2, e3, e4); err != nil {
			return nil, 0, err
		}
	case TagDeclareEventInfo:
		name, e1 := r.str()
		target, e2 := r.str()
		scope, e3 := r.str()
		file, e4 := r.str()
		line, e5 := r.u32()
		lvl, e6 := r.u8()
		ev = EventDeclareEventInfo{Name: name, Target: target, Scope: scope, FileName: file, Line: line, Level: int8(lvl)}
		if err := firstErr(e1, e2, e3, e4, e5, e6); err != nil {
			return nil, 0, err
		}
	case TagStartThread:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventStartThread{Time: t, ThreadID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagStopThread:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventStopThread{Time: t, ThreadID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagLoadImage:
		t, e1 := r.u64()
		path, e2 := r.str()
		base, e3 := r.u64()
		size, e4 := r.u64()
		ev = EventLoadImage{Time: t, Path: path, Base: base, Size: size}
		if err := firstErr(e1, e2, e3, e4); err != nil {
			return nil, 0, err
		}
	case TagUnloadImage:
		t, e1 := r.u64()
		base, e2 := r.u64()
		ev = EventUnloadImage{Time: t, Base: base}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagContextSwitch:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventContextSwitch{Time: t, ThreadID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagThreadWakeup:
		t, e1 := r.u64()
		id, e2 := r.u64()
		ev = EventThreadWakeup{Time: t, ThreadID: id}
		if err := firstErr(e1, e2); err != nil {
			return nil, 0, err
		}
	case TagCallStackSample:
		t, e1 := r.u64()
		id, e2 := r.u64()
		count, e3 := r.u32()
		if err := firstErr(e1, e2, e3); err != nil {
			return nil, 0, err
		}
		frames := make([]uint64, count)
		for i := range frames {
			f, err := r.u64()
			if err != nil {
				return nil, 0, err
			}
			frames[i] = f
		}
		ev = EventCallStackSample{Time: t, ThreadID: id, Frames: frames}
	default:
		return nil, 0, ErrUnknownEventTag
	}
	return ev, r.off, nil
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
