package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/character"
	"github.com/jwebster45206/scene-engine/internal/debrief"
	"github.com/jwebster45206/scene-engine/internal/director"
	"github.com/jwebster45206/scene-engine/internal/evaluator"
	"github.com/jwebster45206/scene-engine/internal/guardrail"
	"github.com/jwebster45206/scene-engine/internal/metrics"
	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/internal/storage"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/skill"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const (
	DefaultStageTimeout = 30 * time.Second
	DefaultMaxRetries   = 2
	DefaultBackoff      = 500 * time.Millisecond
)

// Config tunes the turn pipeline.
type Config struct {
	// StageTimeout bounds each single decision call.
	StageTimeout time.Duration
	// MaxRetries is the number of extra attempts after an upstream failure.
	MaxRetries uint
	// Backoff is the first retry delay; later delays grow exponentially.
	Backoff      time.Duration
	MemoryWindow int
	Guard        guardrail.Config
}

// Publisher receives session events. Failures are logged, never surfaced.
type Publisher interface {
	PublishTurnProcessing(ctx context.Context, sessionID uuid.UUID, step int, playerChoice string) error
	PublishTurnCompleted(ctx context.Context, view state.SessionView) error
	PublishTurnFailed(ctx context.Context, sessionID uuid.UUID, step int, errorMsg string) error
	PublishStatusChanged(ctx context.Context, sessionID uuid.UUID, step int, from, to state.Status) error
}

// Deps are the collaborators the engine is built from. Events and
// Metrics are optional.
type Deps struct {
	Catalog *scenario.Catalog
	Skills  *skill.Registry
	Store   *storage.Store
	Locker  storage.Locker
	LLM     services.LLMService
	Events  Publisher
	Metrics *metrics.Metrics
}

// Engine is the session orchestrator. It owns no session state itself:
// every operation loads the session from the store, works on that copy
// and commits it with a version check.
type Engine struct {
	cfg      Config
	catalog  *scenario.Catalog
	skills   *skill.Registry
	store    *storage.Store
	locker   storage.Locker
	guard    *guardrail.Guard
	judge    *evaluator.Evaluator
	director *director.Director
	runner   *character.Runner
	coach    *debrief.Summarizer
	events   Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(deps Deps, cfg Config, logger *slog.Logger) (*Engine, error) {
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("engine: catalog is required")
	case deps.Skills == nil:
		return nil, fmt.Errorf("engine: skill registry is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("engine: session store is required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("engine: session locker is required")
	case deps.LLM == nil:
		return nil, fmt.Errorf("engine: llm service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	e := &Engine{
		cfg:      cfg,
		catalog:  deps.Catalog,
		skills:   deps.Skills,
		store:    deps.Store,
		locker:   deps.Locker,
		guard:    guardrail.New(cfg.Guard, guardrail.NewLLMClassifier(deps.LLM), deps.Metrics, logger),
		judge:    evaluator.New(deps.LLM, logger),
		director: director.New(deps.LLM, logger),
		coach:    debrief.NewSummarizer(deps.LLM, logger),
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   logger,
	}
	agent := character.NewAgent(deps.LLM, e.guard, logger)
	if cfg.MemoryWindow > 0 {
		agent = agent.WithMemoryWindow(cfg.MemoryWindow)
	}
	e.runner = character.NewRunner(agent, e.characterPolicy, logger)
	return e, nil
}

func (e *Engine) ListModules() []scenario.Module {
	return e.catalog.ListModules()
}

func (e *Engine) GetModule(id string) (scenario.Module, error) {
	return e.catalog.GetModule(id)
}

func (e *Engine) GetSession(ctx context.Context, id uuid.UUID) (*state.Session, error) {
	return e.store.Get(ctx, id)
}

// StartSession creates and persists a new session positioned on the
// scenario's entry turn. An empty scenarioID picks the module's first
// scenario.
func (e *Engine) StartSession(ctx context.Context, profile state.PlayerProfile, moduleID, scenarioID string) (*state.Session, error) {
	if moduleID == "" {
		return nil, state.Validationf("module_id is required")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	scen, err := e.catalog.Get(moduleID, scenarioID)
	if err != nil {
		return nil, err
	}
	chars, err := character.Instantiate(scen, e.skills)
	if err != nil {
		return nil, err
	}

	sess := state.NewSession(profile, scen.ModuleID, scen.ID, scen.StartingHP, scen.MaxSteps, scen.EntryState(), chars)
	if err := e.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	e.metrics.RecordSessionStarted()
	e.logger.Info("Session started",
		"session_id", sess.ID,
		"module_id", sess.ModuleID,
		"scenario_id", sess.ScenarioID,
		"characters", len(sess.Characters))
	return sess, nil
}

// SubmitTurn plays one turn. Only one submission per session may be in
// flight; a concurrent one fails with state.ErrConcurrency. Nothing is
// persisted unless every stage succeeds and the version check passes.
func (e *Engine) SubmitTurn(ctx context.Context, id uuid.UUID, text string) (*state.Session, error) {
	start := time.Now()
	unlock, err := e.locker.TryLock(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrConcurrency) {
			e.metrics.RecordRejected()
			e.logger.Info("Rejected concurrent turn", "session_id", id)
		}
		return nil, err
	}
	defer unlock()

	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != state.StatusActive {
		return nil, state.Statef("session %s is %s", id, sess.Status)
	}
	scen, err := e.catalog.Get(sess.ModuleID, sess.ScenarioID)
	if err != nil {
		return nil, err
	}
	cur := sess.CurrentTurn()
	if cur == nil {
		return nil, state.Statef("session %s has no history", id)
	}

	vctx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	input, err := e.guard.ValidateInput(vctx, text, cur.Choices, cur.Situation)
	cancel()
	if err != nil {
		e.metrics.RecordTurn("rejected", time.Since(start))
		e.logger.Info("Rejected player input", "session_id", id, "error", err)
		return nil, err
	}

	step := sess.Step + 1
	e.publish(func(p Publisher) error {
		return p.PublishTurnProcessing(ctx, id, step, input.Text)
	})

	turn, err := e.playTurn(ctx, sess, scen, input, step)
	if err == nil {
		// a scored turn is finished even if the caller has gone away
		err = e.commit(context.WithoutCancel(ctx), sess, turn)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.metrics.RecordTurn("abandoned", time.Since(start))
			e.logger.Info("Turn abandoned before scoring", "session_id", id, "step", step)
		} else {
			e.metrics.RecordTurn("failed", time.Since(start))
			e.logger.Error("Turn failed", "session_id", id, "step", step, "error", err)
		}
		e.publish(func(p Publisher) error {
			return p.PublishTurnFailed(context.WithoutCancel(ctx), id, step, err.Error())
		})
		return nil, err
	}

	e.metrics.RecordTurn(string(sess.Status), time.Since(start))
	e.logger.Info("Turn completed",
		"session_id", id,
		"step", sess.Step,
		"score", turn.Evaluation.Score,
		"hp_delta", turn.HPDelta,
		"hp", sess.HP,
		"status", sess.Status,
		"duration", time.Since(start))
	return sess, nil
}

// playTurn runs the decision stages against sess, a private working copy.
// On error the copy is discarded by the caller. Cancelling ctx stops the
// turn only until the evaluator has scored it; the later stages run
// under their own stage timeouts.
func (e *Engine) playTurn(ctx context.Context, sess *state.Session, scen *scenario.Scenario, input guardrail.ValidatedInput, step int) (state.Turn, error) {
	names := make(map[string]string, len(sess.Characters))
	for _, c := range sess.Characters {
		names[c.ID] = c.Name
	}
	cur := sess.CurrentTurn()

	eval, err := retryStage(ctx, e, "evaluator", func(ctx context.Context) (state.Evaluation, error) {
		return e.judge.Score(ctx, evaluator.Request{
			PlayerChoice: input.Text,
			Situation:    cur.Situation,
			Scenario:     scen,
			History:      sess.History,
			Profile:      sess.Profile,
			Names:        names,
		})
	})
	if err != nil {
		return state.Turn{}, err
	}
	eval = e.guard.ClampEvaluation(eval, scen.ScoringOrDefault())
	ctx = context.WithoutCancel(ctx)

	out, err := e.direct(ctx, sess, scen, input.Text, eval)
	if err != nil {
		return state.Turn{}, err
	}

	reactions, err := e.runner.Run(ctx, sess, scen, out, input.Text)
	if err != nil {
		return state.Turn{}, err
	}

	return state.Turn{
		Step:          step,
		Situation:     out.Situation,
		TurnOrder:     out.TurnOrder,
		Directives:    out.Directives,
		Reactions:     reactions,
		Choices:       out.Choices,
		PlayerChoice:  input.Text,
		Evaluation:    &eval,
		HPDelta:       eval.HPDelta,
		Branch:        out.Branch,
		ResolvedEarly: out.EarlyResolution,
		CreatedAt:     time.Now(),
	}, nil
}

// direct asks the director for the next turn plan and repairs it. Output
// too broken to repair earns the director exactly one more attempt.
func (e *Engine) direct(ctx context.Context, sess *state.Session, scen *scenario.Scenario, playerChoice string, eval state.Evaluation) (director.Output, error) {
	req := director.Request{
		Session:      sess,
		Scenario:     scen,
		PlayerChoice: playerChoice,
		Evaluation:   eval,
	}
	for attempt := 1; ; attempt++ {
		raw, err := retryStage(ctx, e, "director", func(ctx context.Context) (director.Output, error) {
			return e.director.Advance(ctx, req)
		})
		if err != nil {
			return director.Output{}, err
		}
		out, err := e.guard.ClampDirection(raw, sess.RosterIDs())
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, guardrail.ErrUnrepairable) || attempt >= 2 {
			return director.Output{}, state.Upstream(err)
		}
		e.metrics.RecordRetry("director")
		e.logger.Warn("Director output unrepairable, asking again", "session_id", sess.ID, "error", err)
	}
}

// commit applies the turn and writes it. The write is version-checked, so
// a session that moved on since it was loaded is never overwritten. ctx
// must not carry the caller's cancellation.
func (e *Engine) commit(ctx context.Context, sess *state.Session, turn state.Turn) error {
	prev := sess.Status
	if err := sess.Apply(turn); err != nil {
		return err
	}
	if err := e.store.Save(ctx, sess); err != nil {
		return err
	}

	view := sess.View()
	e.publish(func(p Publisher) error {
		return p.PublishTurnCompleted(ctx, view)
	})
	if sess.Status != prev {
		e.logger.Info("Session status changed", "session_id", sess.ID, "from", prev, "to", sess.Status, "step", sess.Step)
		e.publish(func(p Publisher) error {
			return p.PublishStatusChanged(ctx, sess.ID, sess.Step, prev, sess.Status)
		})
	}
	return nil
}

// RetrySession restarts a lost session from the entry turn with fresh
// characters. Id and profile are kept.
func (e *Engine) RetrySession(ctx context.Context, id uuid.UUID) (*state.Session, error) {
	unlock, err := e.locker.TryLock(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrConcurrency) {
			e.metrics.RecordRejected()
		}
		return nil, err
	}
	defer unlock()

	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != state.StatusLost {
		return nil, state.Statef("session %s is %s; only a lost session can be retried", id, sess.Status)
	}
	scen, err := e.catalog.Get(sess.ModuleID, sess.ScenarioID)
	if err != nil {
		return nil, err
	}
	chars, err := character.Instantiate(scen, e.skills)
	if err != nil {
		return nil, err
	}

	sess.Reset(scen.EntryState(), chars, scen.StartingHP, scen.MaxSteps)
	if err := e.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	e.metrics.RecordSessionStarted()
	e.logger.Info("Session retried", "session_id", id, "version", sess.Version)
	e.publish(func(p Publisher) error {
		return p.PublishStatusChanged(context.WithoutCancel(ctx), id, 0, state.StatusLost, state.StatusActive)
	})
	return sess, nil
}

// GetDebrief summarizes a finished session.
func (e *Engine) GetDebrief(ctx context.Context, id uuid.UUID) (debrief.Debrief, error) {
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return debrief.Debrief{}, err
	}
	if !sess.Status.Terminal() {
		return debrief.Debrief{}, state.Statef("session %s is still %s", id, sess.Status)
	}
	scen, err := e.catalog.Get(sess.ModuleID, sess.ScenarioID)
	if err != nil {
		return debrief.Debrief{}, err
	}
	candidates := e.catalog.Siblings(sess.ModuleID, sess.ScenarioID)
	return retryStage(ctx, e, "debrief", func(ctx context.Context) (debrief.Debrief, error) {
		return e.coach.Debrief(ctx, sess, scen, candidates)
	})
}

func (e *Engine) characterPolicy(ctx context.Context, characterID string, call func(context.Context) (string, error)) (string, error) {
	return retryStage(ctx, e, "character", call)
}

func (e *Engine) publish(fn func(Publisher) error) {
	if e.events == nil {
		return
	}
	if err := fn(e.events); err != nil {
		e.logger.Debug("Event not delivered", "error", err)
	}
}
