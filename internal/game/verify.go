package game

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// VerifyResult reports a full-state verification pass.
type VerifyResult struct {
	IsValid bool     `json:"is_valid"`
	Reason  string   `json:"reason,omitempty"`
	Healed  []string `json:"healed,omitempty"`
}

// Verify checks every cross-record invariant. Derived fields that disagree
// with the records they derive from are recomputed and saved; anything else
// is reported as invalid.
func (e *Engine) Verify() (VerifyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return VerifyResult{}, userErr("verify", err)
	}
	res := e.verify(s)
	if len(res.Healed) > 0 {
		s, err = e.mutate("verify", func(s *snapshot) error {
			res = e.verify(s)
			return nil
		})
		if err != nil {
			return VerifyResult{}, err
		}
	}

	switch {
	case !res.IsValid:
		e.emit("error", "state.invalid", res.Reason, map[string]interface{}{"healed": res.Healed})
	case len(res.Healed) > 0:
		e.emit("warning", "state.healed", "", map[string]interface{}{"healed": res.Healed})
	default:
		e.emit("debug", "state.verified", "", map[string]interface{}{"timestamp": s.progress.Timestamp})
	}
	return res, nil
}

func (e *Engine) verify(s *snapshot) VerifyResult {
	var healed, problems []string
	finish := e.board.FinishSpace()
	p := &s.progress

	// Finished set: unique, and in step with positions.
	var uniq []string
	for _, name := range s.finished {
		if indexOf(uniq, name) < 0 {
			uniq = append(uniq, name)
		}
	}
	if len(uniq) != len(s.finished) {
		s.finished = uniq
		s.touch(storage.TypeFinishedPlayers)
		healed = append(healed, "removed duplicate finished players")
	}
	for _, name := range p.Players {
		atFinish := p.Positions[name] == finish
		switch {
		case atFinish && !s.isFinished(name):
			s.finished = append(s.finished, name)
			s.touch(storage.TypeFinishedPlayers)
			healed = append(healed, "marked "+name+" finished")
		case !atFinish && s.isFinished(name):
			problems = append(problems, fmt.Sprintf("%s is finished but at %s", name, p.Positions[name]))
		}
	}

	if !p.GameEnded && len(s.finished) == len(p.Players) {
		e.recomputeEnded(s)
		healed = append(healed, "set game ended")
	} else if p.GameEnded && len(s.finished) != len(p.Players) {
		problems = append(problems, "game ended with unfinished players")
	}

	// Positions: valid and reachable from the start space.
	reachable := e.board.Reachable(e.board.StartSpace())
	for _, name := range p.Players {
		pos := p.Positions[name]
		if !e.board.IsValidSpace(pos) || !reachable[pos] {
			problems = append(problems, fmt.Sprintf("%s is at unreachable space %q", name, pos))
		}
	}

	// Current player.
	if n := len(p.Players); p.CurrentPlayer < 0 || p.CurrentPlayer >= n {
		p.CurrentPlayer = 0
		healed = append(healed, "reset current player index")
	}
	if !p.GameEnded && s.isFinished(p.Current()) {
		e.advance(s)
		healed = append(healed, "advanced past finished player")
	}

	// Roll state.
	r := &p.Roll
	if r.RollsCompleted > r.RollsRequired || len(r.Rolls) != r.RollsCompleted {
		problems = append(problems, fmt.Sprintf("roll state has %d of %d rolls with %d values", r.RollsCompleted, r.RollsRequired, len(r.Rolls)))
	} else if want := r.RollsCompleted >= r.RollsRequired; r.HasRolled != want {
		r.HasRolled = want
		healed = append(healed, "recomputed has rolled")
	}

	// Card conservation.
	if dups := s.hands.Duplicates(); len(dups) > 0 {
		problems = append(problems, "cards held twice: "+strings.Join(dups, ", "))
	}

	if len(healed) > 0 {
		e.logger.Warn("state healed", zap.Strings("healed", healed))
	}
	res := VerifyResult{IsValid: len(problems) == 0, Healed: healed}
	if !res.IsValid {
		res.Reason = strings.Join(problems, "; ")
	}
	return res
}

// Verifier runs Verify on an interval.
type Verifier struct {
	engine   *Engine
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewVerifier creates a verifier for e.
func NewVerifier(e *Engine, interval time.Duration) *Verifier {
	if interval <= 0 {
		interval = e.rules.VerifyInterval()
	}
	return &Verifier{
		engine:   e,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background verification loop.
func (v *Verifier) Start() {
	v.wg.Add(1)
	go v.loop()
}

// Stop stops the loop and waits for a running pass to finish.
func (v *Verifier) Stop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
	v.wg.Wait()
}

func (v *Verifier) loop() {
	defer v.wg.Done()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			if _, err := v.engine.Verify(); err != nil && !errors.Is(err, ErrNoGame) {
				v.engine.logger.Warn("verification failed", zap.Error(err))
			}
		}
	}
}
