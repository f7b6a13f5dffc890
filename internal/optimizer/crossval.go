package optimizer

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// trainWeight blends the training score with the held-out fold's score.
const (
	trainWeight      = 0.7
	validationWeight = 0.3
)

// CVTrial is one cross-validated parameter combination: the blended
// score averaged over folds and its spread.
type CVTrial struct {
	Params    strategy.Params
	MeanScore float64
	StdScore  float64
}

// segment is a contiguous time slice of the available range.
type segment struct {
	start time.Time
	end   time.Time
}

func (s segment) days() float64 {
	return s.end.Sub(s.start).Hours()/24 + 1
}

// dataRange resolves the searchable period the same way a backtest run
// would: configured bounds win, otherwise the union of symbol ranges.
func (o *Optimizer) dataRange() (time.Time, time.Time, error) {
	var start, end time.Time

	for _, symbol := range o.symbols {
		first, last, ok := o.data.Range(symbol)
		if !ok {
			continue
		}

		if start.IsZero() || first.Before(start) {
			start = first
		}
		if end.IsZero() || last.After(end) {
			end = last
		}
	}

	if start.IsZero() {
		return time.Time{}, time.Time{}, errors.New(errors.ErrCodeDataNotFound, "no bars for the configured symbols")
	}

	if s, err := o.config.StartTime.Take(); err == nil {
		start = s
	}
	if t, err := o.config.EndTime.Take(); err == nil {
		end = t
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New(errors.ErrCodeInvalidTimeRange, "end before start")
	}

	return start, end, nil
}

// splitFolds partitions [start, end] into n contiguous segments of
// near-equal duration.
func splitFolds(start, end time.Time, n int) []segment {
	total := end.Sub(start)
	folds := make([]segment, 0, n)

	for i := 0; i < n; i++ {
		foldStart := start.Add(total * time.Duration(i) / time.Duration(n))
		foldEnd := start.Add(total * time.Duration(i+1) / time.Duration(n))

		if i > 0 {
			// Keep folds disjoint at day granularity.
			foldStart = foldStart.Add(24 * time.Hour)
		}
		if foldStart.After(foldEnd) {
			foldStart = foldEnd
		}

		folds = append(folds, segment{start: foldStart, end: foldEnd})
	}

	return folds
}

// trainSegments returns the contiguous complement of fold i: the span
// before it, the span after it, or both.
func trainSegments(folds []segment, i int) []segment {
	segments := make([]segment, 0, 2)

	if i > 0 {
		segments = append(segments, segment{start: folds[0].start, end: folds[i-1].end})
	}
	if i < len(folds)-1 {
		segments = append(segments, segment{start: folds[i+1].start, end: folds[len(folds)-1].end})
	}

	return segments
}

// crossValidateOne scores one parameter combination across all folds.
// Any failed run invalidates the combination.
func (o *Optimizer) crossValidateOne(ctx context.Context, params strategy.Params, folds []segment) (CVTrial, error) {
	scores := make([]float64, 0, len(folds))

	for i, fold := range folds {
		// Training runs over the contiguous complement spans, weighted
		// by their length in days.
		trainScore := 0.0
		trainDays := 0.0

		for _, span := range trainSegments(folds, i) {
			result, err := o.run(ctx, params, optional.Some(span.start), optional.Some(span.end))
			if err != nil {
				return CVTrial{}, err
			}

			trainScore += o.metric.score(result) * span.days()
			trainDays += span.days()
		}

		if trainDays > 0 {
			trainScore /= trainDays
		}

		valResult, err := o.run(ctx, params, optional.Some(fold.start), optional.Some(fold.end))
		if err != nil {
			return CVTrial{}, err
		}

		scores = append(scores, trainWeight*trainScore+validationWeight*o.metric.score(valResult))
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return CVTrial{
		Params:    params,
		MeanScore: mean,
		StdScore:  math.Sqrt(variance),
	}, nil
}

// CrossValidate runs a time-fold cross-validated grid search: the date
// range is split into folds contiguous segments; each combination
// trains on the complement of every fold and validates on the held-out
// fold, blending the two scores 0.7/0.3. The combination with the best
// mean blended score wins and is re-run over the full range to produce
// the reported result.
func (o *Optimizer) CrossValidate(ctx context.Context, grid Grid, foldCount int) (CVTrial, types.Result, error) {
	if foldCount < 2 {
		return CVTrial{}, types.Result{}, errors.Newf(errors.ErrCodeInvalidFoldCount, "need at least 2 folds, got %d", foldCount)
	}

	combos := combinations(grid)
	if len(combos) == 0 {
		return CVTrial{}, types.Result{}, errors.New(errors.ErrCodeEmptyGrid, "parameter grid is empty")
	}

	start, end, err := o.dataRange()
	if err != nil {
		return CVTrial{}, types.Result{}, err
	}

	folds := splitFolds(start, end, foldCount)
	trials := make([]*CVTrial, len(combos))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.parallelism)

	for i, params := range combos {
		group.Go(func() error {
			trial, err := o.crossValidateOne(groupCtx, params, folds)
			if err != nil {
				o.log.Warn("combination failed cross-validation, dropping",
					zap.Any("params", map[string]any(params)),
					zap.Error(err),
				)

				return nil
			}

			trials[i] = &trial

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return CVTrial{}, types.Result{}, err
	}

	valid := make([]CVTrial, 0, len(combos))
	for _, trial := range trials {
		if trial != nil {
			valid = append(valid, *trial)
		}
	}

	if len(valid) == 0 {
		return CVTrial{}, types.Result{}, errors.New(errors.ErrCodeNoValidTrials, "no parameter combination survived cross-validation")
	}

	sort.SliceStable(valid, func(a, b int) bool {
		return valid[a].MeanScore > valid[b].MeanScore
	})

	best := valid[0]

	finalResult, err := o.run(ctx, best.Params, optional.Some(start), optional.Some(end))
	if err != nil {
		return CVTrial{}, types.Result{}, err
	}

	return best, finalResult, nil
}
