// Package trust implements the Trust Model Configuration: the set of trusted
// keys, their membership in composite trust models, and each model's
// threshold.
package trust

import (
	"errors"

	"xdao.co/trustreason/facts"
	"xdao.co/trustreason/intern"
)

// DefaultName is the synthetic top-level trust element every Config
// constructs, against which root-output adequacy is ultimately checked.
const DefaultName = "default"

var (
	// ErrEmptyKeys is returned when no trusted keys were supplied.
	ErrEmptyKeys = errors.New("trust: at least one trusted key is required")
	// ErrZeroThreshold is returned when a threshold is less than 1.
	ErrZeroThreshold = errors.New("trust: threshold must be >= 1")
	// ErrThresholdTooHigh is returned when threshold exceeds the number of keys.
	ErrThresholdTooHigh = errors.New("trust: threshold exceeds number of trusted keys")
)

// Config is the trust-model configuration built at reasoner construction.
type Config struct {
	Default      intern.TM
	Threshold    int
	Keys         []intern.TM
	ExpectedRoot intern.UDrv
}

// New interns a synthetic top-level "default" trust element with the given
// threshold, and one leaf key trust element (threshold 1, parent default)
// per entry of trustedKeys, recording every tuple into store.
//
// It fails if trustedKeys is empty, threshold is zero, or threshold exceeds
// len(trustedKeys).
func New(in *intern.Interner, store *facts.Store, trustedKeys []string, threshold int, expectedRoot string) (*Config, error) {
	if len(trustedKeys) == 0 {
		return nil, ErrEmptyKeys
	}
	if threshold < 1 {
		return nil, ErrZeroThreshold
	}
	if threshold > len(trustedKeys) {
		return nil, ErrThresholdTooHigh
	}

	defaultTM := in.InternTM(DefaultName)
	store.AddTrustModel(defaultTM, threshold, false, intern.TM{}, false)

	keys := make([]intern.TM, 0, len(trustedKeys))
	for _, k := range trustedKeys {
		tm := in.InternTM(k)
		store.AddTrustModel(tm, 1, true, defaultTM, true)
		keys = append(keys, tm)
	}

	return &Config{
		Default:      defaultTM,
		Threshold:    threshold,
		Keys:         keys,
		ExpectedRoot: in.InternUDrv(expectedRoot),
	}, nil
}

// AddComposite registers an additional composite trust model named name,
// requiring threshold of its own immediate children to agree, with parent
// as its parent trust element. The evaluator treats it the same as any other
// composite in the hierarchy.
func (c *Config) AddComposite(in *intern.Interner, store *facts.Store, name string, threshold int, parent string) (intern.TM, error) {
	if threshold < 1 {
		return intern.TM{}, ErrZeroThreshold
	}
	tm := in.InternTM(name)
	parentTM := in.InternTM(parent)
	store.AddTrustModel(tm, threshold, false, parentTM, true)
	return tm, nil
}
