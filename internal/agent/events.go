package agent

import "time"

// maxEvents bounds the event log.
const maxEvents = 500

// Event is a notable state change, kept for clients that poll.
type Event struct {
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Package string    `json:"package,omitempty"`
	Message string    `json:"message"`
}

type eventLog struct {
	seq    uint64
	events []Event
}

func (l *eventLog) add(e Event) Event {
	l.seq++
	e.Seq = l.seq
	l.events = append(l.events, e)
	if over := len(l.events) - maxEvents; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	return e
}

func (l *eventLog) since(seq uint64) []Event {
	i := len(l.events)
	for i > 0 && l.events[i-1].Seq > seq {
		i--
	}
	return append([]Event(nil), l.events[i:]...)
}

func (a *Agent) emit(kind, pkg, message string) {
	e := a.events.add(Event{Time: a.now(), Kind: kind, Package: pkg, Message: message})
	if a.onEvent != nil {
		a.onEvent(e)
	}
}

// Events returns the retained events with a sequence number above since,
// oldest first.
func (a *Agent) Events(since uint64) []Event {
	return a.events.since(since)
}

// LastEventSeq returns the sequence number of the newest event.
func (a *Agent) LastEventSeq() uint64 {
	return a.events.seq
}
