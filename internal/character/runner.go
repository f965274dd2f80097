package character

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/scene-engine/internal/director"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// CallPolicy wraps every character call, typically with a timeout and
// bounded retries. A nil policy calls straight through.
type CallPolicy func(ctx context.Context, characterID string, call func(context.Context) (string, error)) (string, error)

// Runner plays one turn of character reactions.
type Runner struct {
	agent  *Agent
	policy CallPolicy
	logger *slog.Logger
}

func NewRunner(agent *Agent, policy CallPolicy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{agent: agent, policy: policy, logger: logger}
}

// Run executes out.TurnOrder against sess, which must be a working copy:
// acting characters get their new directive and memory, and everyone
// else loses last turn's directive. Characters with
// no dependency react concurrently; a character that reacts to another
// waits for that line first. out must already be clamped, so every
// dependency points to an earlier actor. Reactions come back in turn
// order. Any failure fails the whole turn.
func (r *Runner) Run(ctx context.Context, sess *state.Session, scen *scenario.Scenario, out director.Output, playerChoice string) ([]state.Reaction, error) {
	shared := NewSharedContext(sess, scen, out.Situation, playerChoice)

	for i := range sess.Characters {
		sess.Characters[i].Directive = ""
	}

	order := out.TurnOrder
	insts := make([]*state.CharacterInstance, len(order))
	done := make(map[string]chan struct{}, len(order))
	index := make(map[string]int, len(order))
	for i, id := range order {
		inst := sess.Character(id)
		if inst == nil {
			return nil, fmt.Errorf("character %q not in session roster", id)
		}
		inst.Directive = out.Directives[id]
		insts[i] = inst
		done[id] = make(chan struct{})
		index[id] = i
	}

	lines := make([]string, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range order {
		g.Go(func() error {
			var prior *state.Reaction
			var priorName string
			if target, ok := out.Dependencies[id]; ok {
				ch, known := done[target]
				if !known || index[target] >= i {
					return fmt.Errorf("character %q depends on %q which does not act before it", id, target)
				}
				select {
				case <-ch:
				case <-gctx.Done():
					return gctx.Err()
				}
				j := index[target]
				prior = &state.Reaction{CharacterID: target, Dialogue: lines[j]}
				priorName = insts[j].Name
			}

			call := func(ctx context.Context) (string, error) {
				return r.agent.React(ctx, insts[i], shared, prior, priorName)
			}
			var (
				line string
				err  error
			)
			if r.policy != nil {
				line, err = r.policy(gctx, id, call)
			} else {
				line, err = call(gctx)
			}
			if err != nil {
				r.logger.Warn("Character reaction failed", "character_id", id, "error", err)
				return fmt.Errorf("character %s: %w", id, err)
			}
			lines[i] = line
			// only a successful line releases dependents; on failure they
			// are released by the group's cancellation
			close(done[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reactions := make([]state.Reaction, len(order))
	for i, id := range order {
		reactions[i] = state.Reaction{CharacterID: id, Dialogue: lines[i]}
	}
	return reactions, nil
}
