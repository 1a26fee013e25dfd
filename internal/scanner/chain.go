package scanner

import (
	"context"
	"fmt"
	"strings"
)

// ChainDetector runs detectors in order. The first threat found wins and any
// detector error fails the whole chain.
type ChainDetector struct {
	detectors []Detector
}

// NewChainDetector creates a detector chain
func NewChainDetector(detectors ...Detector) *ChainDetector {
	return &ChainDetector{detectors: detectors}
}

// Name implements Detector
func (c *ChainDetector) Name() string {
	names := make([]string, 0, len(c.detectors))
	for _, d := range c.detectors {
		names = append(names, d.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Detect implements Detector
func (c *ChainDetector) Detect(ctx context.Context, content []byte) (string, error) {
	for _, d := range c.detectors {
		threat, err := d.Detect(ctx, content)
		if err != nil {
			return "", fmt.Errorf("%s detector: %w", d.Name(), err)
		}
		if threat != "" {
			return threat, nil
		}
	}
	return "", nil
}

// State implements StateReporter
func (c *ChainDetector) State() map[string]string {
	states := make(map[string]string)
	for _, d := range c.detectors {
		if r, ok := d.(StateReporter); ok {
			for k, v := range r.State() {
				states[k] = v
			}
		}
	}
	return states
}
