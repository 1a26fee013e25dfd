// Package scanner hashes uploaded artifacts and runs them through a malware
// detector. A scan never reports clean unless the detector completed and
// found nothing.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Detector inspects artifact content. It returns a non-empty threat name when
// the content is infected, an empty name when it is clean, or an error when
// it could not reach a decision.
type Detector interface {
	Name() string
	Detect(ctx context.Context, content []byte) (string, error)
}

// StateReporter is implemented by detectors with a health state worth exposing
type StateReporter interface {
	State() map[string]string
}

// Verdict is the outcome of a completed scan
type Verdict struct {
	Clean       bool      `json:"clean"`
	ThreatName  string    `json:"threat_name,omitempty"`
	ScannedAt   time.Time `json:"scanned_at"`
	ContentHash string    `json:"content_hash"`
	Engine      string    `json:"engine"`
}

// Scanner runs a detector under a deadline
type Scanner struct {
	detector Detector
	timeout  time.Duration
}

// NewScanner creates a scanner around detector
func NewScanner(detector Detector, timeout time.Duration) *Scanner {
	return &Scanner{detector: detector, timeout: timeout}
}

// New builds a scanner for the configured mode
func New(cfg *config.ScannerConfig) (*Scanner, error) {
	signature := NewSignatureDetector(cfg.BlockedHashes, cfg.MaxEntryRatio)

	var detector Detector
	switch cfg.Mode {
	case "signature", "":
		detector = signature
	case "remote":
		detector = NewRemoteDetector(cfg.RemoteURL, cfg.RemoteToken, WithMaxRetries(cfg.RemoteMaxRetries))
	case "chain":
		detector = NewChainDetector(signature, NewRemoteDetector(cfg.RemoteURL, cfg.RemoteToken, WithMaxRetries(cfg.RemoteMaxRetries)))
	default:
		return nil, fmt.Errorf("unsupported scanner mode: %s", cfg.Mode)
	}

	log.Info().Str("mode", cfg.Mode).Str("engine", detector.Name()).Dur("timeout", cfg.Timeout).Msg("content scanner initialized")
	return NewScanner(detector, cfg.Timeout), nil
}

type detectResult struct {
	threat string
	err    error
}

// Scan hashes content and runs the detector on it. A detector failure yields
// ErrScanFailed and an expired deadline yields ErrScanTimeout.
func (s *Scanner) Scan(ctx context.Context, content []byte) (*Verdict, error) {
	startTime := time.Now()
	hash := utils.ComputeSHA256(content)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(chan detectResult, 1)
	go func() {
		threat, err := s.detector.Detect(ctx, content)
		results <- detectResult{threat: threat, err: err}
	}()

	var res detectResult
	select {
	case <-ctx.Done():
		res.err = ctx.Err()
	case res = <-results:
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Str("content_hash", hash).Str("engine", s.detector.Name()).Dur("timeout", s.timeout).Msg("content scan timed out")
			return nil, types.ErrScanTimeout.Wrap(res.err)
		}
		log.Error().Err(res.err).Str("content_hash", hash).Str("engine", s.detector.Name()).Msg("content scan failed")
		return nil, types.ErrScanFailed.Wrap(res.err)
	}

	verdict := &Verdict{
		Clean:       res.threat == "",
		ThreatName:  res.threat,
		ScannedAt:   time.Now().UTC(),
		ContentHash: hash,
		Engine:      s.detector.Name(),
	}

	event := log.Info()
	if !verdict.Clean {
		event = log.Warn().Str("threat", verdict.ThreatName)
	}
	event.Str("content_hash", hash).
		Str("engine", verdict.Engine).
		Int("bytes", len(content)).
		Dur("duration", time.Since(startTime)).
		Bool("clean", verdict.Clean).
		Msg("content scanned")

	return verdict, nil
}

// State returns the health state of detectors that report one
func (s *Scanner) State() map[string]string {
	if r, ok := s.detector.(StateReporter); ok {
		return r.State()
	}
	return map[string]string{}
}
