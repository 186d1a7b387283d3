package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadlane/delivery-ocr-service/internal/models"
	"github.com/loadlane/delivery-ocr-service/internal/recognize"
)

type stubProvider struct {
	name  string
	fn    func(ctx context.Context, image []byte) (*models.RawResult, error)
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Recognize(ctx context.Context, image []byte) (*models.RawResult, error) {
	s.calls++
	return s.fn(ctx, image)
}

func structuredStub(fields map[string]string, text string) *stubProvider {
	return &stubProvider{
		name: "remote",
		fn: func(ctx context.Context, image []byte) (*models.RawResult, error) {
			return &models.RawResult{Fields: fields, Text: text, Source: "remote"}, nil
		},
	}
}

func failingStub(name string, err error) *stubProvider {
	return &stubProvider{
		name: name,
		fn: func(ctx context.Context, image []byte) (*models.RawResult, error) {
			return nil, err
		},
	}
}

func textStub(text string, confidence float64) *stubProvider {
	return &stubProvider{
		name: "local",
		fn: func(ctx context.Context, image []byte) (*models.RawResult, error) {
			return &models.RawResult{Text: text, Confidence: confidence, Source: "local"}, nil
		},
	}
}

func newTestOrchestrator(remote, local recognize.Provider) *Orchestrator {
	o := NewOrchestrator(remote, local, NewExtractor(models.HeuristicsConfig{}), models.RecognitionConfig{
		TimeoutSeconds: 1,
		MaxAttempts:    3,
	})
	o.sleep = func(time.Duration) {}
	return o
}

var testImage = []byte("not really a jpeg")

func TestExtract_NoImage(t *testing.T) {
	o := newTestOrchestrator(structuredStub(nil, ""), nil)

	_, _, err := o.Extract(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoImage)
}

func TestExtract_PrimarySufficient(t *testing.T) {
	remote := structuredStub(map[string]string{
		"sender":     "Karoo Lamb Farm",
		"receiver":   "Karan Beef",
		"date":       "2024-09-15",
		"truckReg":   "ABC 123 GP",
		"trailerReg": "XYZ 789 GP",
	}, "DELIVERY SLIP raw text")
	local := textStub("should never be called", 50)

	o := newTestOrchestrator(remote, local)

	fs, text, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "Karoo Lamb Farm", fs.Sender)
	assert.Equal(t, "ABC 123 GP", fs.TruckReg)
	assert.Equal(t, "2024-09-15", fs.Date)
	assert.Equal(t, "DELIVERY SLIP raw text", text)
	assert.Equal(t, 1, remote.calls)
	assert.Zero(t, local.calls, "secondary tier must not run when primary found a registration")
}

func TestExtract_PrimaryRetriesWithBackoff(t *testing.T) {
	calls := 0
	remote := &stubProvider{
		name: "remote",
		fn: func(ctx context.Context, image []byte) (*models.RawResult, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection refused")
			}
			return &models.RawResult{
				Fields: map[string]string{"truckReg": "ABC 123 GP"},
				Source: "remote",
			}, nil
		},
	}

	o := newTestOrchestrator(remote, nil)
	var slept []time.Duration
	o.sleep = func(d time.Duration) { slept = append(slept, d) }

	fs, _, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "ABC 123 GP", fs.TruckReg)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
}

func TestExtract_SecondaryFillsMissingRegistration(t *testing.T) {
	remote := structuredStub(map[string]string{"sender": "Karoo Lamb Farm"}, "")
	local := textStub("Truck Reg No: HXT 401 GP\nTrailer Reg No: JKL 889 FS", 65)

	o := newTestOrchestrator(remote, local)

	fs, text, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "Karoo Lamb Farm", fs.Sender)
	assert.Equal(t, "HXT 401 GP", fs.TruckReg)
	assert.Equal(t, "JKL 889 FS", fs.TrailerReg)
	assert.Equal(t, 65.0, fs.Confidence)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, "Truck Reg No: HXT 401 GP\nTrailer Reg No: JKL 889 FS", text,
		"the recognized text is returned for persistence")
}

func TestExtract_PrimaryDownSecondaryCarries(t *testing.T) {
	remote := failingStub("remote", errors.New("503 service unavailable"))
	local := textStub("SENDER: Bergplaas Boerdery\nTruck Reg No: HXT 401 GP", 60)

	o := newTestOrchestrator(remote, local)

	fs, _, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "Bergplaas Boerdery", fs.Sender)
	assert.Equal(t, "HXT 401 GP", fs.TruckReg)
	assert.Equal(t, 3, remote.calls, "remote is retried before falling through")
}

func TestExtract_TertiaryRecoversRegistrations(t *testing.T) {
	remote := failingStub("remote", errors.New("timeout"))
	local := textStub("vehicle reg HXT4031GP JKL889FS", 55)

	o := newTestOrchestrator(remote, local)

	fs, _, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "HXT4031GP", fs.TruckReg)
	assert.Equal(t, "JKL889FS", fs.TrailerReg)
}

func TestExtract_RemoteRawTextFeedsHeuristics(t *testing.T) {
	// Remote parsed no named fields but returned the raw text block
	remote := structuredStub(map[string]string{}, "Truck Reg No: HXT 401 GP")

	o := newTestOrchestrator(remote, nil)

	fs, text, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "HXT 401 GP", fs.TruckReg)
	assert.Zero(t, fs.Confidence, "remote raw text carries no quality signal")
	assert.Equal(t, "Truck Reg No: HXT 401 GP", text)
}

func TestExtract_GarbageTextSucceedsEmpty(t *testing.T) {
	remote := failingStub("remote", errors.New("down"))
	local := textStub("zzz qqq 123", 20)

	o := newTestOrchestrator(remote, local)

	fs, _, err := o.Extract(context.Background(), testImage)
	require.NoError(t, err, "finding nothing on a readable page is not an error")

	assert.Empty(t, fs.TruckReg)
	assert.Empty(t, fs.Sender)
	assert.Empty(t, fs.Table)
}

func TestExtract_AllTiersExhausted(t *testing.T) {
	remote := failingStub("remote", errors.New("down"))
	local := textStub("", 0)

	o := newTestOrchestrator(remote, local)

	_, _, err := o.Extract(context.Background(), testImage)

	assert.ErrorIs(t, err, ErrExtractionUnavailable)
}

func TestExtract_NoProvidersAtAll(t *testing.T) {
	o := newTestOrchestrator(nil, nil)

	_, _, err := o.Extract(context.Background(), testImage)

	assert.ErrorIs(t, err, ErrExtractionUnavailable)
}
