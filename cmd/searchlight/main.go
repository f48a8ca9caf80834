package main

import (
	"context"
	"fmt"
	"time"

	"github.com/KyungWonPark/Searchlight/internal/config"
	"github.com/KyungWonPark/Searchlight/internal/io"
	"github.com/KyungWonPark/Searchlight/internal/kernel"
	"github.com/KyungWonPark/Searchlight/internal/labels"
	"github.com/KyungWonPark/Searchlight/internal/logging"
	"github.com/KyungWonPark/Searchlight/internal/searchlight"
	"github.com/KyungWonPark/Searchlight/internal/volume"
	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/gonum/stat"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type args struct {
	Participant int    `arg:"positional" default:"1" help:"participant number"`
	Kernel      string `arg:"positional" default:"calc_rsa" help:"calc_rsa or calc_svm"`
	Config      string `arg:"--config,env:SEARCHLIGHT_CONFIG" help:"YAML file overriding the default parameters"`
}

func main() {
	var a args
	p := arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		p.Fail(err.Error())
	}
	if a.Participant < 1 || a.Participant > cfg.Participants {
		p.Fail(fmt.Sprintf("participant must be in [1, %d]", cfg.Participants))
	}
	if _, err := kernel.Lookup(a.Kernel); err != nil {
		p.Fail(err.Error())
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		p.Fail(err.Error())
	}
	defer logger.Sync()

	start := time.Now()
	ppt := config.Participant(a.Participant)
	logger.Info("run started",
		zap.String("participant", ppt),
		zap.String("kernel", a.Kernel),
		zap.Int("workers", cfg.Searchlight.Workers),
		zap.Time("start", start),
	)

	if err := run(context.Background(), cfg, ppt, a.Kernel, logger); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	logger.Info("run finished",
		zap.String("participant", ppt),
		zap.String("kernel", a.Kernel),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func run(ctx context.Context, cfg *config.Config, ppt, kernelName string, logger *zap.Logger) error {
	funcPath := cfg.FuncPath(ppt)
	bold, header, err := io.LoadFunctional(funcPath, nil)
	if err != nil {
		return errors.Wrap(err, "loading functional data")
	}
	logger.Info("functional data loaded",
		zap.String("path", funcPath),
		zap.Any("dims", bold.Dims),
		zap.Int("timepoints", bold.T),
		zap.String("size", humanize.Bytes(bold.Bytes())),
	)

	mask, _, err := io.LoadMask(cfg.MaskPath())
	if err != nil {
		return errors.Wrap(err, "loading mask")
	}
	logger.Info("mask loaded", zap.String("path", cfg.MaskPath()), zap.Int("voxels", mask.Count()))

	data, shared, err := prepare(cfg, kernelName, bold, logger)
	if err != nil {
		return err
	}

	shape, err := searchlight.ShapeByName(cfg.Searchlight.Shape)
	if err != nil {
		return err
	}
	sl := searchlight.New(cfg.Searchlight.Radius, cfg.Searchlight.MaxBlockEdge, shape, logger)
	if err := sl.Distribute(data, mask); err != nil {
		return errors.Wrap(err, "distributing data")
	}
	sl.Broadcast(shared)

	kern, err := kernel.Lookup(kernelName)
	if err != nil {
		return err
	}

	begin := time.Now()
	scores, err := sl.Run(ctx, kern, cfg.Searchlight.Workers)
	if err != nil {
		return errors.Wrap(err, "running searchlight")
	}

	finite := scores.Finite()
	mean := 0.0
	if len(finite) > 0 {
		mean = stat.Mean(finite, nil)
	}
	logger.Info("searchlight scores",
		zap.Int("voxels", len(finite)),
		zap.Float64("mean", mean),
		zap.Duration("elapsed", time.Since(begin)),
	)

	scores.ZeroNonFinite()
	out, err := io.SaveScores(cfg.OutputPath(kernelName, ppt), header, scores)
	if err != nil {
		return errors.Wrap(err, "saving scores")
	}
	logger.Info("scores saved", zap.String("path", out))

	return nil
}

// prepare builds the datasets and the broadcast value for one kernel
func prepare(cfg *config.Config, kernelName string, bold *volume.Volume, logger *zap.Logger) ([]*volume.Volume, interface{}, error) {
	switch kernelName {
	case config.KernelRSA:
		second, err := bold.SliceTime(cfg.FirstSegmentDuration, bold.T)
		if err != nil {
			return nil, nil, errors.Wrap(err, "slicing second segment")
		}

		vec, err := io.ReadModel(cfg.ModelPath, cfg.RSA.DiagonalOffset)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading model")
		}
		model := &kernel.RSAModel{Vector: vec, DiagonalOffset: cfg.RSA.DiagonalOffset}
		if err := model.Check(second.T); err != nil {
			return nil, nil, err
		}
		logger.Info("model loaded", zap.String("path", cfg.ModelPath), zap.Int("entries", len(vec)))

		return []*volume.Volume{second}, model, nil

	case config.KernelSVM:
		events, err := io.ReadEvents(cfg.EventsPath())
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading events")
		}
		res, err := labels.Derive(events, labels.Params{
			TRDuration: cfg.TRDuration,
			Separation: cfg.Labels.Separation,
			Buffer:     cfg.Labels.Buffer,
			LagShift:   cfg.LagShiftTRs(),
			Boundary:   cfg.FirstSegmentDuration,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "deriving labels")
		}

		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		bc := &kernel.SVMLabels{
			C:         cfg.SVM.C,
			MaxIter:   cfg.SVM.MaxIter,
			Tolerance: cfg.SVM.Tolerance,
			Seed:      seed,
		}

		data := make([]*volume.Volume, 2)
		for seg, samples := range res.Segments {
			data[seg], err = bold.SelectTimes(samples.Shifted)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "selecting %s samples", labels.Segment(seg))
			}
			bc.Labels[seg] = labels.Bools(samples.Labels)
			logger.Info("samples selected",
				zap.Stringer("segment", labels.Segment(seg)),
				zap.Int("observations", len(samples.Shifted)),
			)
		}
		if err := bc.Check(); err != nil {
			return nil, nil, err
		}

		return data, bc, nil
	}

	return nil, nil, errors.Errorf("unknown kernel %q", kernelName)
}
