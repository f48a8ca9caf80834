package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Kernel names accepted on the command line
const (
	KernelRSA = "calc_rsa"
	KernelSVM = "calc_svm"
)

// SearchlightConfig controls neighborhood shape and work partitioning
type SearchlightConfig struct {
	Radius       int    `yaml:"radius"`
	MaxBlockEdge int    `yaml:"max_block_edge"`
	Shape        string `yaml:"shape"`
	Workers      int    `yaml:"workers"` // 0 means one per CPU
}

// LabelConfig controls sample selection for the classifier
type LabelConfig struct {
	Separation int     `yaml:"tr_separation"`
	Buffer     int     `yaml:"tr_buffer"`
	LagShift   float64 `yaml:"lag_shift"` // seconds
}

// RSAConfig controls calc_rsa
type RSAConfig struct {
	DiagonalOffset int `yaml:"diagonal_offset"`
}

// SVMConfig controls calc_svm
type SVMConfig struct {
	C         float64 `yaml:"c"`
	MaxIter   int     `yaml:"max_iter"` // 0 means the solver's own limit
	Tolerance float64 `yaml:"tolerance"`
}

// Config holds everything one run needs
type Config struct {
	DataDir              string            `yaml:"data_dir"`
	ModelPath            string            `yaml:"model_path"`
	OutputDir            string            `yaml:"output_dir"`
	TRDuration           float64           `yaml:"tr_duration"`
	FirstSegmentDuration int               `yaml:"first_segment_duration"`
	Participants         int               `yaml:"participants"`
	Seed                 int64             `yaml:"seed"`
	LogLevel             string            `yaml:"log_level"`
	Searchlight          SearchlightConfig `yaml:"searchlight"`
	Labels               LabelConfig       `yaml:"labels"`
	RSA                  RSAConfig         `yaml:"rsa"`
	SVM                  SVMConfig         `yaml:"svm"`
}

// Default returns the parameters of the course run
func Default() *Config {
	return &Config{
		DataDir:              "/farmshare/home/classes/psych/236/data/Sherlock/",
		ModelPath:            "alex_fc6_rsm.npy",
		OutputDir:            ".",
		TRDuration:           1.5,
		FirstSegmentDuration: 946,
		Participants:         17,
		LogLevel:             "info",
		Searchlight: SearchlightConfig{
			Radius:       1,
			MaxBlockEdge: 5,
			Shape:        "cube",
		},
		Labels: LabelConfig{
			Separation: 8,
			Buffer:     3,
			LagShift:   6,
		},
		RSA: RSAConfig{
			DiagonalOffset: 10,
		},
		SVM: SVMConfig{
			C:         0.01,
			MaxIter:   0,
			Tolerance: 1e-3,
		},
	}
}

// Load reads a YAML file on top of the defaults. With an empty path it tries
// $SEARCHLIGHT_CONFIG; with neither, the defaults are used. SHERLOCK_DIR and
// RESULT override the data and output directories.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SEARCHLIGHT_CONFIG")
	}

	if path != "" {
		buf, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	}

	if dir := os.Getenv("SHERLOCK_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if dir := os.Getenv("RESULT"); dir != "" {
		cfg.OutputDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the numeric parameters are usable
func (c *Config) Validate() error {
	switch {
	case c.TRDuration <= 0:
		return errors.Errorf("tr_duration must be positive, got %g", c.TRDuration)
	case c.FirstSegmentDuration < 0:
		return errors.Errorf("first_segment_duration must not be negative, got %d", c.FirstSegmentDuration)
	case c.Participants < 1:
		return errors.Errorf("participants must be at least 1, got %d", c.Participants)
	case c.Searchlight.Radius < 0:
		return errors.Errorf("searchlight radius must not be negative, got %d", c.Searchlight.Radius)
	case c.Searchlight.MaxBlockEdge < 1:
		return errors.Errorf("max_block_edge must be at least 1, got %d", c.Searchlight.MaxBlockEdge)
	case c.Searchlight.Workers < 0:
		return errors.Errorf("workers must not be negative, got %d", c.Searchlight.Workers)
	case c.Labels.Separation < 0 || c.Labels.Buffer < 0 || c.Labels.LagShift < 0:
		return errors.New("label parameters must not be negative")
	case c.RSA.DiagonalOffset < 1:
		return errors.Errorf("diagonal_offset must be at least 1, got %d", c.RSA.DiagonalOffset)
	case c.SVM.C <= 0:
		return errors.Errorf("svm c must be positive, got %g", c.SVM.C)
	case c.SVM.MaxIter < 0 || c.SVM.Tolerance < 0:
		return errors.New("svm max_iter and tolerance must not be negative")
	}
	return nil
}

// LagShiftTRs converts the hemodynamic lag into whole TRs, truncating
func (c *Config) LagShiftTRs() int {
	return int(c.Labels.LagShift / c.TRDuration)
}

// Participant returns the BIDS subject name, e.g. sub-01
func Participant(n int) string {
	return fmt.Sprintf("sub-%02d", n)
}

// FuncPath returns the participant's 4D movie file
func (c *Config) FuncPath(ppt string) string {
	return filepath.Join(c.DataDir, "derivatives", "movie_files", ppt+".nii.gz")
}

// MaskPath returns the whole brain mask shared by all participants
func (c *Config) MaskPath() string {
	return filepath.Join(c.DataDir, "derivatives", "searchlights", "whole_brain_mask.nii.gz")
}

// EventsPath returns the speech event log
func (c *Config) EventsPath() string {
	return filepath.Join(c.DataDir, "derivatives", "event_file.csv")
}

// OutputPath returns the score map path for one kernel and participant
func (c *Config) OutputPath(kernel, ppt string) string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("searchlight_%s_%s.nii.gz", kernel, ppt))
}
