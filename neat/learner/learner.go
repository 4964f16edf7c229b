// Package learner drives a NEAT population: it hands genomes to an
// evaluator, reports their fitness, advances generations and records the
// evolved policies.
package learner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/baldhumanity/policy-neat/neat"
	"github.com/baldhumanity/policy-neat/neat/nn"
	"github.com/baldhumanity/policy-neat/neat/persist"
)

// Evaluator scores a phenotype by running it for the given duration. The
// returned fitness must be finite and non-negative. Evaluate may be called
// from several goroutines at once, each with its own network.
type Evaluator interface {
	Evaluate(ctx context.Context, net *nn.Network, duration time.Duration) (float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, net *nn.Network, duration time.Duration) (float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, net *nn.Network, duration time.Duration) (float64, error) {
	return f(ctx, net, duration)
}

// StopReason tells why Run returned.
type StopReason string

const (
	StopMaxGenerations   StopReason = "max_generations"
	StopMaxEvaluations   StopReason = "max_evaluations"
	StopFitnessThreshold StopReason = "fitness_threshold"
	StopCanceled         StopReason = "canceled"
)

// Result summarizes a finished run.
type Result struct {
	RunID       string
	Reason      StopReason
	Generations int
	Evaluations int
	Best        *neat.Genome // nil when nothing was evaluated
	BestFitness float64
}

type scoredGenome struct {
	evaluation int
	fitness    float64
	genome     *neat.Genome
}

// Learner owns a population and the run around it. It is not safe for
// concurrent use; evaluations run in parallel inside Run.
type Learner struct {
	config  *neat.Config
	logger  *zap.Logger
	pop     *neat.Population
	popOpts []neat.Option
	store   persist.Store
	metrics *Metrics
	runID   string

	ownsStore   bool
	evaluations int
	highest     float64
	best        []scoredGenome // best first, at most Persistence.BestCount
	finalized   bool
}

// Option configures a Learner.
type Option func(*Learner)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStore records policies in store instead of the backend named by the
// persistence config. The caller keeps ownership and closes it.
func WithStore(store persist.Store) Option {
	return func(l *Learner) { l.store = store }
}

// WithMetrics sets the collectors updated during the run.
func WithMetrics(m *Metrics) Option {
	return func(l *Learner) { l.metrics = m }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(l *Learner) {
		if id != "" {
			l.runID = id
		}
	}
}

// WithPopulation drives an existing population, e.g. one restored from a
// checkpoint, instead of creating one.
func WithPopulation(p *neat.Population) Option {
	return func(l *Learner) { l.pop = p }
}

// WithPopulationOptions passes options to the population the learner creates.
func WithPopulationOptions(opts ...neat.Option) Option {
	return func(l *Learner) { l.popOpts = append(l.popOpts, opts...) }
}

// New creates a learner. Unless a population is supplied it creates one,
// continuing the innovation ledger at Persistence.InnovationsPath when that
// file exists.
func New(config *neat.Config, opts ...Option) (*Learner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	l := &Learner{
		config:  config,
		logger:  zap.NewNop(),
		runID:   uuid.NewString(),
		highest: math.Inf(-1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("run_id", l.runID))
	if l.metrics == nil {
		metrics, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		l.metrics = metrics
	}

	if l.pop == nil {
		popOpts := []neat.Option{neat.WithLogger(l.logger)}
		if path := config.Persistence.InnovationsPath; path != "" {
			_, err := os.Stat(path)
			switch {
			case err == nil:
				ledger, err := persist.LoadLedger(path)
				if err != nil {
					return nil, err
				}
				popOpts = append(popOpts, neat.WithLedger(ledger))
				l.logger.Info("innovation ledger loaded",
					zap.String("path", path),
					zap.Int("next_innovation", ledger.NextInnovation()))
			case !errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("failed to stat ledger '%s': %w", path, err)
			}
		}
		pop, err := neat.NewPopulation(config, append(popOpts, l.popOpts...)...)
		if err != nil {
			return nil, err
		}
		l.pop = pop
	}

	if l.store == nil {
		pc := config.Persistence
		store, err := persist.NewStore(pc.Store, pc.Dir, pc.SQLitePath, l.runID)
		if err != nil {
			return nil, err
		}
		l.store = store
		l.ownsStore = true
	}
	if err := l.store.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", config.Persistence.Store, err)
	}
	return l, nil
}

// RunID identifies the run in logs and in the SQLite store.
func (l *Learner) RunID() string { return l.runID }

// Population returns the driven population.
func (l *Learner) Population() *neat.Population { return l.pop }

// Evaluations returns the number of fitness values reported so far.
func (l *Learner) Evaluations() int { return l.evaluations }

// Best returns up to Persistence.BestCount of the best genomes seen, best first.
func (l *Learner) Best() []*neat.Genome {
	out := make([]*neat.Genome, len(l.best))
	for i, s := range l.best {
		out[i] = s.genome
	}
	return out
}

func (l *Learner) policyName() string { return l.config.Persistence.RobotName + ".policy" }
func (l *Learner) bestName() string   { return l.config.Persistence.RobotName + ".best" }

// Run evaluates generations until a limit from the config is reached or ctx
// is canceled, then finalizes. Evaluator errors and invalid fitness values
// abort the run without finalizing. Cancellation finalizes and returns the
// context's error.
func (l *Learner) Run(ctx context.Context, eval Evaluator) (Result, error) {
	l.logger.Info("run started",
		zap.Int("population", l.config.Neat.PopSize),
		zap.Int("workers", l.config.Neat.Workers),
		zap.Int("generation", l.pop.Generation()))

	for {
		if reason, done := l.limitReached(); done {
			return l.finish(ctx, reason)
		}
		if err := ctx.Err(); err != nil {
			return l.cancel(ctx, err)
		}

		reason, done, err := l.evaluateBatch(ctx, eval)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return l.cancel(ctx, ctxErr)
			}
			return l.result(""), err
		}
		if done {
			return l.finish(ctx, reason)
		}

		if l.pop.Evaluated() {
			champion := l.pop.Champion()
			summary := l.pop.FitnessSummary()
			if err := l.pop.NextGeneration(); err != nil {
				return l.result(""), err
			}
			l.metrics.Generation.Set(float64(l.pop.Generation()))
			l.metrics.Species.Set(float64(len(l.pop.Species())))
			l.metrics.GenerationBest.Set(champion.Fitness)
			l.metrics.GenerationMean.Set(summary.Mean)
		}
	}
}

func (l *Learner) limitReached() (StopReason, bool) {
	nc := l.config.Neat
	if nc.MaxGenerations > 0 && l.pop.Generation() >= nc.MaxGenerations {
		return StopMaxGenerations, true
	}
	if nc.MaxEvaluations > 0 && l.evaluations >= nc.MaxEvaluations {
		return StopMaxEvaluations, true
	}
	return "", false
}

// evaluateBatch scores every pending genome of the generation in parallel,
// then reports the scores in queue order.
func (l *Learner) evaluateBatch(ctx context.Context, eval Evaluator) (StopReason, bool, error) {
	var batch []*neat.Genome
	for {
		if limit := l.config.Neat.MaxEvaluations; limit > 0 && l.evaluations+len(batch) >= limit {
			break
		}
		g, ok := l.pop.PopPending()
		if !ok {
			break
		}
		batch = append(batch, g)
	}
	if len(batch) == 0 && !l.pop.Evaluated() {
		return "", false, fmt.Errorf("generation %d: %w", l.pop.Generation(), neat.ErrEvaluationPending)
	}

	scores := make([]float64, len(batch))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.config.Neat.Workers)
	for i, g := range batch {
		eg.Go(func() error {
			start := time.Now()
			f, err := l.evaluate(egCtx, eval, g)
			l.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("evaluating genome %d: %w", g.ID, err)
			}
			scores[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", false, err
	}

	nc := l.config.Neat
	for i, g := range batch {
		if err := l.report(ctx, g, scores[i]); err != nil {
			return "", false, err
		}
		if !nc.NoFitnessTermination && scores[i] >= nc.FitnessThreshold {
			l.logger.Info("fitness threshold reached",
				zap.Int("genome", g.ID),
				zap.Float64("fitness", scores[i]),
				zap.Int("evaluation", l.evaluations))
			return StopFitnessThreshold, true, nil
		}
	}
	return "", false, nil
}

// evaluate returns the mean of RepeatEvaluations scores, each taken on a
// fresh phenotype.
func (l *Learner) evaluate(ctx context.Context, eval Evaluator, g *neat.Genome) (float64, error) {
	repeats := l.config.Neat.RepeatEvaluations
	if repeats < 1 {
		repeats = 1
	}
	total := 0.0
	for r := 0; r < repeats; r++ {
		f, err := eval.Evaluate(ctx, nn.New(g), l.config.Neat.EvaluationTime)
		if err != nil {
			return 0, err
		}
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("fitness %g: %w", f, neat.ErrInvalidFitness)
		}
		total += f
	}
	return total / float64(repeats), nil
}

func (l *Learner) report(ctx context.Context, g *neat.Genome, fitness float64) error {
	if err := l.pop.ReportFitness(g.ID, fitness); err != nil {
		return err
	}
	l.evaluations++
	l.metrics.Evaluations.Inc()
	if fitness > l.highest {
		l.highest = fitness
		l.metrics.HighestFitness.Set(fitness)
	}
	if err := l.store.Append(ctx, l.policyName(), persist.FromGenome(g, l.evaluations, fitness)); err != nil {
		return fmt.Errorf("failed to record evaluation %d: %w", l.evaluations, err)
	}
	l.recordBest(g, fitness)
	return nil
}

// recordBest keeps the BestCount fittest genomes; earlier evaluations win ties.
func (l *Learner) recordBest(g *neat.Genome, fitness float64) {
	limit := l.config.Persistence.BestCount
	if limit <= 0 {
		return
	}
	i := sort.Search(len(l.best), func(i int) bool { return l.best[i].fitness < fitness })
	if i >= limit {
		return
	}
	entry := scoredGenome{evaluation: l.evaluations, fitness: fitness, genome: g.Duplicate(g.ID)}
	l.best = append(l.best, scoredGenome{})
	copy(l.best[i+1:], l.best[i:])
	l.best[i] = entry
	if len(l.best) > limit {
		l.best = l.best[:limit]
	}
}

// Finalize appends the best genomes to the .best collection and saves the
// innovation ledger. It runs at most once; Run calls it when a limit is hit.
func (l *Learner) Finalize(ctx context.Context) error {
	if l.finalized {
		return nil
	}
	l.finalized = true

	if len(l.best) > 0 {
		records := make([]persist.Record, len(l.best))
		for i, s := range l.best {
			records[i] = persist.FromGenome(s.genome, s.evaluation, s.fitness)
		}
		if err := l.store.Append(ctx, l.bestName(), records...); err != nil {
			return fmt.Errorf("failed to record best genomes: %w", err)
		}
	}
	if path := l.config.Persistence.InnovationsPath; path != "" {
		if err := persist.SaveLedger(path, l.pop.Ledger()); err != nil {
			return err
		}
	}
	return nil
}

func (l *Learner) finish(ctx context.Context, reason StopReason) (Result, error) {
	if err := l.Finalize(ctx); err != nil {
		return l.result(reason), err
	}
	l.metrics.RunsCompleted.WithLabelValues(string(reason)).Inc()
	res := l.result(reason)
	l.logger.Info("run finished",
		zap.String("reason", string(reason)),
		zap.Int("generations", res.Generations),
		zap.Int("evaluations", res.Evaluations),
		zap.Float64("best_fitness", res.BestFitness))
	return res, nil
}

func (l *Learner) cancel(ctx context.Context, cause error) (Result, error) {
	res, err := l.finish(context.WithoutCancel(ctx), StopCanceled)
	if err != nil {
		return res, errors.Join(cause, err)
	}
	return res, cause
}

func (l *Learner) result(reason StopReason) Result {
	res := Result{
		RunID:       l.runID,
		Reason:      reason,
		Generations: l.pop.Generation(),
		Evaluations: l.evaluations,
	}
	if len(l.best) > 0 {
		res.Best = l.best[0].genome
		res.BestFitness = l.best[0].fitness
	}
	return res
}

// Close releases the store when the learner created it.
func (l *Learner) Close() error {
	if !l.ownsStore {
		return nil
	}
	return l.store.Close()
}
