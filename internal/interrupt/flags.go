// Package interrupt holds the process-local barge-in signal. The egress loop
// polls it between audio frames, so reads must stay O(1) and lock-cheap; the
// persisted session flag covers anything observing the snapshot from outside
// this process.
package interrupt

import "sync"

type Flags struct {
	mu    sync.Mutex
	flags map[string]bool
}

func NewFlags() *Flags {
	return &Flags{flags: make(map[string]bool)}
}

// Set marks the caller for callID as having interrupted the bot.
func (f *Flags) Set(callID string) {
	f.mu.Lock()
	f.flags[callID] = true
	f.mu.Unlock()
}

// IsSet reports whether a barge-in is pending for callID.
func (f *Flags) IsSet(callID string) bool {
	f.mu.Lock()
	v := f.flags[callID]
	f.mu.Unlock()
	return v
}

// Clear removes the flag entry entirely; called on call finalization.
func (f *Flags) Clear(callID string) {
	f.mu.Lock()
	delete(f.flags, callID)
	f.mu.Unlock()
}

// ActiveCount reports how many calls currently have a pending interruption.
func (f *Flags) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.flags {
		if v {
			n++
		}
	}
	return n
}
