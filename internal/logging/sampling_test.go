package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{Enabled: false}

	sampled := newSampledCore(core, cfg)

	// Should return original core unchanged
	assert.Equal(t, core, sampled)
}

func TestNewSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(10 * time.Millisecond),
		Initial:    5,
		Thereafter: 0,
	}

	sampled := newSampledCore(core, cfg)
	logger := zap.New(sampled)

	// Log 100 errors (should never be sampled)
	for i := 0; i < 100; i++ {
		logger.Error("error message")
	}

	logs := observed.FilterMessage("error message").All()
	assert.Len(t, logs, 100, "errors should never be sampled")
}

func TestNewSampledCore_InfoSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    5,
		Thereafter: 0,
	}

	sampled := newSampledCore(core, cfg)
	logger := zap.New(sampled)

	// Log 20 info messages quickly
	for i := 0; i < 20; i++ {
		logger.Info("info message")
	}

	// Should have ~5 (initial), rest dropped. Allow variance for a
	// tick boundary crossing mid-loop.
	logs := observed.FilterMessage("info message").All()
	assert.GreaterOrEqual(t, len(logs), 5)
	assert.LessOrEqual(t, len(logs), 10, "should sample info logs")
}

func TestNewSampledCore_TraceNotFiltered(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    5,
		Thereafter: 0,
	}

	sampled := newSampledCore(core, cfg)
	logger := zap.New(sampled)

	logger.Log(TraceLevel, "wire dump")

	logs := observed.FilterMessage("wire dump").All()
	assert.Len(t, logs, 1, "trace entries pass through the sampled path")
}

func TestSampling_ActualVolumeReduction(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    5,
		Thereafter: 2,
	}

	sampled := newSampledCore(core, cfg)
	logger := zap.New(sampled)

	// Log 100 identical info messages rapidly
	for i := 0; i < 100; i++ {
		logger.Info("repeated message")
	}

	logged := observed.FilterMessage("repeated message").All()
	assert.Less(t, len(logged), 100, "sampling should reduce log volume")
	assert.Greater(t, len(logged), 5, "thereafter should pass some beyond initial")
}

func TestLevelFilterCore_With(t *testing.T) {
	core, observed := observer.New(TraceLevel)

	// Create level filter that only allows Error and above
	filtered := &levelFilterCore{
		Core:     core,
		minLevel: zapcore.ErrorLevel,
	}

	// Create child logger with With()
	child := zap.New(filtered).With(zap.String("component", "poller"))

	child.Info("info message")   // Should be filtered
	child.Warn("warn message")   // Should be filtered
	child.Error("error message") // Should pass through

	logs := observed.All()
	assert.Equal(t, 1, len(logs), "only error should pass through")
	assert.Equal(t, "error message", logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)

	// Verify child logger kept the field
	assert.Equal(t, "poller", logs[0].ContextMap()["component"])
}
