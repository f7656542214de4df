package messaging

import "time"

// Keystroke announces typing in the open conversation and restarts the
// idle timer. When the timer fires without another keystroke a stop is
// sent.
func (v *View) Keystroke() error {
	v.typingMu.Lock()
	defer v.typingMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.active == "" {
		v.mu.Unlock()
		return ErrNoActiveConversation
	}
	conv := v.active
	if v.typingTimer != nil {
		v.typingTimer.Stop()
		v.typingTimer = nil
	}
	v.mu.Unlock()

	if err := v.t.EmitTyping(conv, true); err != nil {
		v.log.Debugf("typing start not sent: %v", err)
	}

	v.mu.Lock()
	v.typingSeq++
	seq := v.typingSeq
	v.typingConv = conv
	v.typingTimer = time.AfterFunc(v.idle, func() { v.typingIdle(seq) })
	v.mu.Unlock()
	return nil
}

// StopTyping sends the stop immediately if a typing indicator is live.
func (v *View) StopTyping() {
	v.typingMu.Lock()
	defer v.typingMu.Unlock()

	v.mu.Lock()
	conv := v.clearTyping()
	v.mu.Unlock()
	v.sendStop(conv)
}

func (v *View) typingIdle(seq uint64) {
	v.typingMu.Lock()
	defer v.typingMu.Unlock()

	v.mu.Lock()
	if seq != v.typingSeq {
		v.mu.Unlock()
		return
	}
	conv := v.clearTyping()
	v.mu.Unlock()
	v.sendStop(conv)
}

// clearTyping resets the timer state and returns the conversation that
// still needs a stop, if any. Caller holds v.mu.
func (v *View) clearTyping() string {
	if v.typingTimer == nil {
		return ""
	}
	v.typingTimer.Stop()
	v.typingTimer = nil
	v.typingSeq++
	conv := v.typingConv
	v.typingConv = ""
	return conv
}

func (v *View) sendStop(conv string) {
	if conv == "" {
		return
	}
	if err := v.t.EmitTyping(conv, false); err != nil {
		v.log.Debugf("typing stop not sent: %v", err)
	}
}
