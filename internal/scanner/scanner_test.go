package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDetector is a mock implementation of Detector
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Name() string {
	return "mock"
}

func (m *MockDetector) Detect(ctx context.Context, content []byte) (string, error) {
	args := m.Called(ctx, content)
	return args.String(0), args.Error(1)
}

// blockingDetector waits for its context to expire
type blockingDetector struct{}

func (blockingDetector) Name() string { return "blocking" }

func (blockingDetector) Detect(ctx context.Context, content []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// stuckDetector ignores its context entirely
type stuckDetector struct {
	release chan struct{}
}

func (stuckDetector) Name() string { return "stuck" }

func (d stuckDetector) Detect(ctx context.Context, content []byte) (string, error) {
	<-d.release
	return "", nil
}

func buildJar(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestScanner_CleanVerdict(t *testing.T) {
	content := []byte("clean jar bytes")
	detector := new(MockDetector)
	detector.On("Detect", mock.Anything, content).Return("", nil)

	verdict, err := NewScanner(detector, time.Second).Scan(context.Background(), content)
	require.NoError(t, err)

	assert.True(t, verdict.Clean)
	assert.Empty(t, verdict.ThreatName)
	assert.Equal(t, utils.ComputeSHA256(content), verdict.ContentHash)
	assert.Equal(t, "mock", verdict.Engine)
	assert.False(t, verdict.ScannedAt.IsZero())
	detector.AssertExpectations(t)
}

func TestScanner_InfectedVerdict(t *testing.T) {
	detector := new(MockDetector)
	detector.On("Detect", mock.Anything, mock.Anything).Return("Trojan.Test", nil)

	verdict, err := NewScanner(detector, time.Second).Scan(context.Background(), []byte("bad"))
	require.NoError(t, err)

	assert.False(t, verdict.Clean)
	assert.Equal(t, "Trojan.Test", verdict.ThreatName)
}

func TestScanner_DetectorErrorIsNeverClean(t *testing.T) {
	detector := new(MockDetector)
	detector.On("Detect", mock.Anything, mock.Anything).Return("", errors.New("engine crashed"))

	verdict, err := NewScanner(detector, time.Second).Scan(context.Background(), []byte("x"))
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, types.ErrScanFailed)
	assert.Equal(t, types.KindSecurity, types.KindOf(err))
}

func TestScanner_Timeout(t *testing.T) {
	t.Run("detector honours context", func(t *testing.T) {
		verdict, err := NewScanner(blockingDetector{}, 20*time.Millisecond).Scan(context.Background(), []byte("x"))
		assert.Nil(t, verdict)
		assert.ErrorIs(t, err, types.ErrScanTimeout)
		assert.True(t, types.KindOf(err).Retryable())
	})

	t.Run("detector ignores context", func(t *testing.T) {
		d := stuckDetector{release: make(chan struct{})}
		defer close(d.release)

		verdict, err := NewScanner(d, 20*time.Millisecond).Scan(context.Background(), []byte("x"))
		assert.Nil(t, verdict)
		assert.ErrorIs(t, err, types.ErrScanTimeout)
	})
}

func TestScanner_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict, err := NewScanner(blockingDetector{}, time.Second).Scan(ctx, []byte("x"))
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, types.ErrScanFailed)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.ScannerConfig
		wantEngine string
		wantErr    bool
	}{
		{name: "signature", cfg: config.ScannerConfig{Mode: "signature", Timeout: time.Second}, wantEngine: "signature"},
		{name: "remote", cfg: config.ScannerConfig{Mode: "remote", Timeout: time.Second, RemoteURL: "http://scanner.local/scan"}, wantEngine: "remote"},
		{name: "chain", cfg: config.ScannerConfig{Mode: "chain", Timeout: time.Second, RemoteURL: "http://scanner.local/scan"}, wantEngine: "chain(signature,remote)"},
		{name: "unknown", cfg: config.ScannerConfig{Mode: "clamav"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEngine, s.detector.Name())
		})
	}
}

func TestScanner_State(t *testing.T) {
	s := NewScanner(NewSignatureDetector(nil, 0), time.Second)
	assert.Empty(t, s.State())

	remote := NewRemoteDetector("http://scanner.local/scan", "")
	s = NewScanner(NewChainDetector(NewSignatureDetector(nil, 0), remote), time.Second)
	assert.Equal(t, map[string]string{"scanner.local": "closed"}, s.State())
}
