package main

import (
	"fmt"
	"path/filepath"

	"github.com/KyungWonPark/Searchlight/internal/config"
	"github.com/KyungWonPark/Searchlight/internal/io"
	"github.com/KyungWonPark/Searchlight/internal/labels"
	"github.com/KyungWonPark/Searchlight/internal/logging"
	"github.com/alexflint/go-arg"
	"github.com/gonum/matrix/mat64"
	"go.uber.org/zap"
)

func main() {
	var args struct {
		Events string `arg:"positional" help:"event CSV, defaults to the one under the data directory"`
		Config string `arg:"--config,env:SEARCHLIGHT_CONFIG" help:"YAML file overriding the default parameters"`
		Table  bool   `arg:"--table" help:"also write one raw, shifted, label row per sample"`
	}
	p := arg.MustParse(&args)

	cfg, err := config.Load(args.Config)
	if err != nil {
		p.Fail(err.Error())
	}
	if args.Events == "" {
		args.Events = cfg.EventsPath()
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		p.Fail(err.Error())
	}
	defer logger.Sync()

	events, err := io.ReadEvents(args.Events)
	if err != nil {
		logger.Fatal("reading events", zap.Error(err))
	}

	res, err := labels.Derive(events, labels.Params{
		TRDuration: cfg.TRDuration,
		Separation: cfg.Labels.Separation,
		Buffer:     cfg.Labels.Buffer,
		LagShift:   cfg.LagShiftTRs(),
		Boundary:   cfg.FirstSegmentDuration,
	})
	if err != nil {
		logger.Fatal("deriving labels", zap.Error(err))
	}

	known := 0
	for _, c := range res.Conditions {
		if c != labels.Unknown {
			known++
		}
	}
	logger.Info("events discretized",
		zap.Int("events", len(events)),
		zap.Int("timepoints", len(res.Conditions)),
		zap.Int("labelled", known),
	)

	for seg, samples := range res.Segments {
		name := labels.Segment(seg).String()

		values := make([]float64, len(samples.Labels))
		speech := 0
		for i, c := range samples.Labels {
			values[i] = float64(c)
			if c == labels.Speech {
				speech++
			}
		}

		obsPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("observations_%s.npy", name))
		if err := io.WriteInts(obsPath, samples.Shifted); err != nil {
			logger.Fatal("writing observations", zap.Error(err))
		}
		labelPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("labels_%s.npy", name))
		if err := io.WriteVector(labelPath, values); err != nil {
			logger.Fatal("writing labels", zap.Error(err))
		}

		if args.Table && len(samples.Raw) > 0 {
			table := mat64.NewDense(len(samples.Raw), 3, nil)
			for i := range samples.Raw {
				table.Set(i, 0, float64(samples.Raw[i]))
				table.Set(i, 1, float64(samples.Shifted[i]))
				table.Set(i, 2, values[i])
			}
			tablePath := filepath.Join(cfg.OutputDir, fmt.Sprintf("samples_%s.npy", name))
			if err := io.Mat64toNpy(tablePath, table); err != nil {
				logger.Fatal("writing sample table", zap.Error(err))
			}
		}

		logger.Info("samples written",
			zap.String("segment", name),
			zap.Int("observations", len(samples.Shifted)),
			zap.Int("speech", speech),
			zap.String("observations_path", obsPath),
			zap.String("labels_path", labelPath),
		)
	}
}
