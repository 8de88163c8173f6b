package detector

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind identifies a detector family in a Spec.
type Kind string

const (
	KindStreak      Kind = "streak"
	KindDominance   Kind = "dominance"
	KindBucket      Kind = "bucket"
	KindChiSquare   Kind = "chisquare"
	KindGap         Kind = "gap"
	KindAdjacency   Kind = "adjacency"
	KindAlternation Kind = "alternation"
)

// Spec is a tagged-variant detector description: the kind plus exactly one
// matching parameter block. Specs are validated once, at build time; an
// invalid spec is a configuration fault, never a runtime one.
type Spec struct {
	Kind        Kind               `yaml:"kind"`
	Streak      *StreakParams      `yaml:"streak,omitempty"`
	Dominance   *DominanceParams   `yaml:"dominance,omitempty"`
	Bucket      *BucketParams      `yaml:"bucket,omitempty"`
	ChiSquare   *ChiSquareParams   `yaml:"chisquare,omitempty"`
	Gap         *GapParams         `yaml:"gap,omitempty"`
	Adjacency   *AdjacencyParams   `yaml:"adjacency,omitempty"`
	Alternation *AlternationParams `yaml:"alternation,omitempty"`
}

// DefaultSpecs returns the full stock detector set for the double wheel.
func DefaultSpecs() []Spec {
	streak := DefaultStreakParams()
	dominance := DefaultDominanceParams()
	lowHigh := DefaultLowHighParams()
	chi := DefaultChiSquareParams()
	gap := DefaultGapParams()
	adj := DefaultAdjacencyParams()
	alt := DefaultAlternationParams()
	return []Spec{
		{Kind: KindChiSquare, ChiSquare: &chi},
		{Kind: KindAdjacency, Adjacency: &adj},
		{Kind: KindBucket, Bucket: &lowHigh},
		{Kind: KindGap, Gap: &gap},
		{Kind: KindAlternation, Alternation: &alt},
		{Kind: KindDominance, Dominance: &dominance},
		{Kind: KindStreak, Streak: &streak},
	}
}

// LoadSpecs reads a YAML detector spec file: a top-level `detectors` list.
func LoadSpecs(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "detector: read spec file")
	}
	var file struct {
		Detectors []Spec `yaml:"detectors"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "detector: parse spec file")
	}
	if len(file.Detectors) == 0 {
		return nil, eris.Errorf("detector: spec file %s defines no detectors", path)
	}
	return file.Detectors, nil
}

// Build validates the specs and constructs the registry.
func Build(specs []Spec, space Space, mode Mode) (*Registry, error) {
	if mode != ModeReversion && mode != ModeMomentum {
		return nil, eris.Errorf("detector: unknown mode %q", mode)
	}

	detectors := make([]Detector, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		d, err := build(spec, space, mode)
		if err != nil {
			return nil, eris.Wrapf(err, "detector: spec %d", i)
		}
		if seen[d.ID()] {
			return nil, eris.Errorf("detector: duplicate pattern id %q", d.ID())
		}
		seen[d.ID()] = true
		detectors = append(detectors, d)
	}
	return NewRegistry(detectors...), nil
}

func build(spec Spec, space Space, mode Mode) (Detector, error) {
	switch spec.Kind {
	case KindStreak:
		if spec.Streak == nil {
			return nil, eris.New("streak params missing")
		}
		if err := spec.Streak.validate(); err != nil {
			return nil, err
		}
		return NewStreak(*spec.Streak, space, mode), nil
	case KindDominance:
		if spec.Dominance == nil {
			return nil, eris.New("dominance params missing")
		}
		if err := spec.Dominance.validate(); err != nil {
			return nil, err
		}
		return NewDominance(*spec.Dominance, space, mode), nil
	case KindBucket:
		if spec.Bucket == nil {
			return nil, eris.New("bucket params missing")
		}
		if err := spec.Bucket.validate(); err != nil {
			return nil, err
		}
		return NewBucket(*spec.Bucket, mode), nil
	case KindChiSquare:
		if spec.ChiSquare == nil {
			return nil, eris.New("chisquare params missing")
		}
		if err := spec.ChiSquare.validate(); err != nil {
			return nil, err
		}
		return NewChiSquare(*spec.ChiSquare, mode), nil
	case KindGap:
		if spec.Gap == nil {
			return nil, eris.New("gap params missing")
		}
		if err := spec.Gap.validate(); err != nil {
			return nil, err
		}
		return NewGap(*spec.Gap), nil
	case KindAdjacency:
		if spec.Adjacency == nil {
			return nil, eris.New("adjacency params missing")
		}
		if err := spec.Adjacency.validate(); err != nil {
			return nil, err
		}
		return NewAdjacency(*spec.Adjacency), nil
	case KindAlternation:
		if spec.Alternation == nil {
			return nil, eris.New("alternation params missing")
		}
		if err := spec.Alternation.validate(); err != nil {
			return nil, err
		}
		return NewAlternation(*spec.Alternation, mode), nil
	default:
		return nil, eris.Errorf("unknown detector kind %q", spec.Kind)
	}
}
