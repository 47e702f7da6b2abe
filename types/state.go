package types

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROCESS STATE - Trading mode & emergency-stop latch
// ═══════════════════════════════════════════════════════════════════════════════
//
// One State instance is created at startup and passed by reference to every
// component. The mode is fixed for the process lifetime; the emergency-stop
// latch, once tripped, blocks every submission until ResumeTrading is called.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Mode selects the execution backend, fixed at process start
type Mode string

const (
	ModeSimulation Mode = "simulation"
	ModeTestnet    Mode = "testnet"
	ModeMainnet    Mode = "mainnet"
)

// Live reports whether orders hit a real chain
func (m Mode) Live() bool {
	return m == ModeTestnet || m == ModeMainnet
}

// State is the process-scoped trading state shared by all components
type State struct {
	mu         sync.RWMutex
	mode       Mode
	stopped    bool
	stopReason string
	stoppedAt  time.Time
	startedAt  time.Time

	onStop []func(reason string)
}

// NewState creates process state for the given mode
func NewState(mode Mode) *State {
	return &State{
		mode:      mode,
		startedAt: time.Now(),
	}
}

// Mode returns the trading mode (immutable after start)
func (s *State) Mode() Mode {
	return s.mode
}

// StartedAt returns process start time
func (s *State) StartedAt() time.Time {
	return s.startedAt
}

// Uptime returns time since process start
func (s *State) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// TripEmergencyStop latches the global halt. Idempotent; the first
// reason wins. Listeners registered via OnEmergencyStop are notified.
func (s *State) TripEmergencyStop(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.stopReason = reason
	s.stoppedAt = time.Now()
	listeners := make([]func(string), len(s.onStop))
	copy(listeners, s.onStop)
	s.mu.Unlock()

	log.Error().
		Str("reason", reason).
		Msg("🚨 EMERGENCY STOP TRIPPED - all submissions blocked")

	for _, fn := range listeners {
		fn(reason)
	}
}

// ResumeTrading clears the latch. Only an explicit operator action
// calls this; the latch never auto-clears.
func (s *State) ResumeTrading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		return
	}
	s.stopped = false
	s.stopReason = ""
	log.Warn().Msg("✅ Trading resumed by operator")
}

// EmergencyStopped reports whether the latch is tripped
func (s *State) EmergencyStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// StopReason returns why the latch tripped, empty if it has not
func (s *State) StopReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopReason
}

// OnEmergencyStop registers a callback fired when the latch trips
func (s *State) OnEmergencyStop(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, fn)
}
