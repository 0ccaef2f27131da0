package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopebench/internal/instrument"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// stubSession records every interaction and answers like a well behaved scope.
type stubSession struct {
	calls []string

	clock     *fakeClock
	transfers []time.Duration // clock advance per curve read, cycled

	recordLength string
	samples      []int16

	failCommand     string
	opcTimeoutOn    int
	truncateOn      int
	acquisitions    int
	curveCalls      int
	requestedFormat instrument.SampleFormat
}

func newStub() *stubSession {
	return &stubSession{
		clock:        &fakeClock{now: time.Unix(0, 0)},
		transfers:    []time.Duration{time.Millisecond},
		recordLength: "125000",
		samples:      make([]int16, 125000),
	}
}

func (s *stubSession) Command(cmd string) error {
	s.calls = append(s.calls, cmd)
	if cmd == s.failCommand {
		return &instrument.SessionError{Op: "write", Command: cmd, Err: errors.New("device error")}
	}
	if cmd == cmdSingle {
		s.acquisitions++
	}
	return nil
}

func (s *stubSession) Query(cmd string) (string, error) {
	s.calls = append(s.calls, cmd)
	switch cmd {
	case recordLengthQuery:
		return s.recordLength, nil
	case cmdOPC:
		if s.opcTimeoutOn > 0 && s.acquisitions == s.opcTimeoutOn {
			return "", &instrument.SessionError{Op: "read", Command: cmd, Err: fmt.Errorf("%w: i/o timeout", instrument.ErrTimeout)}
		}
		return "1", nil
	}
	return "", nil
}

func (s *stubSession) QueryBinary(cmd string, f instrument.SampleFormat) ([]int16, error) {
	s.calls = append(s.calls, cmd)
	s.requestedFormat = f
	s.clock.Advance(s.transfers[s.curveCalls%len(s.transfers)])
	s.curveCalls++
	if s.truncateOn > 0 && s.curveCalls == s.truncateOn {
		return nil, &instrument.SessionError{Op: "read", Command: cmd, Err: instrument.ErrTruncatedBlock}
	}
	return s.samples, nil
}

func validConfig(trials int) Config {
	cfg := DefaultConfig()
	cfg.Trials = trials
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	stub := newStub()
	stub.transfers = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}

	cfg := Config{
		SampleRate:      25e6,
		HorizontalScale: 4e-4,
		RecordLength:    125000,
		Trials:          3,
		ByteWidth:       1,
		Source:          "CH1",
	}
	r := NewRunner(cfg, stub, WithClock(stub.clock.Now))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Trials, 3)
	assert.InDelta(t, 0.06, report.TotalSeconds, 1e-12)
	assert.InDelta(t, 0.02, report.MeanSeconds, 1e-12)
	assert.Equal(t, report.TotalSeconds/3, report.MeanSeconds)

	for i, want := range []float64{0.01, 0.02, 0.03} {
		assert.Equal(t, i+1, report.Trials[i].Index)
		assert.InDelta(t, want, report.Trials[i].Seconds(), 1e-12)
		assert.Equal(t, 125000, report.Trials[i].Samples)
		assert.Equal(t, 125000, report.Trials[i].Bytes)
	}
	assert.Equal(t, instrument.SampleFormat{Width: 1, Signed: true}, stub.requestedFormat)
}

func TestRunTrialCountAndOrder(t *testing.T) {
	for _, n := range []int{1, 2, 7, 50} {
		t.Run(fmt.Sprintf("trials=%d", n), func(t *testing.T) {
			stub := newStub()
			stub.transfers = []time.Duration{3 * time.Millisecond, 11 * time.Millisecond, 7 * time.Millisecond, 500 * time.Microsecond}
			r := NewRunner(validConfig(n), stub, WithClock(stub.clock.Now))

			report, err := r.Run(context.Background())
			require.NoError(t, err)
			require.True(t, report.Complete(n))

			sum := 0.0
			for i, tr := range report.Trials {
				assert.Equal(t, i+1, tr.Index)
				sum += tr.Seconds()
			}
			assert.InDelta(t, sum, report.TotalSeconds, 1e-9)
			assert.Equal(t, report.TotalSeconds/float64(n), report.MeanSeconds)
		})
	}
}

func TestRunTrialProtocol(t *testing.T) {
	stub := newStub()
	r := NewRunner(validConfig(2), stub, WithClock(stub.clock.Now))

	setup := Setup{RecordLength: 125000, Format: instrument.FormatForWidth(2)}
	results, err := r.RunTrials(context.Background(), setup)
	require.NoError(t, err)
	require.Len(t, results, 2)

	want := []string{
		"ACQuire:STATE OFF", "ACQuire:STOPAfter SEQuence;STATE ON", "*OPC?", "CURVe?",
		"ACQuire:STATE OFF", "ACQuire:STOPAfter SEQuence;STATE ON", "*OPC?", "CURVe?",
	}
	assert.Equal(t, want, stub.calls)
	assert.Equal(t, 250000, results[0].Bytes)
}

func TestRunInvalidConfigTouchesNothing(t *testing.T) {
	cases := map[string]func(*Config){
		"zero trials":     func(c *Config) { c.Trials = 0 },
		"byte width 3":    func(c *Config) { c.ByteWidth = 3 },
		"negative rate":   func(c *Config) { c.SampleRate = -1 },
		"zero scale":      func(c *Config) { c.HorizontalScale = 0 },
		"zero record":     func(c *Config) { c.RecordLength = 0 },
		"unknown channel": func(c *Config) { c.Source = "CH9" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(5)
			mutate(&cfg)
			stub := newStub()

			report, err := NewRunner(cfg, stub).Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Empty(t, stub.calls)
			assert.Nil(t, report.Trials)
		})
	}
}

func TestRunAcquisitionTimeoutAborts(t *testing.T) {
	stub := newStub()
	stub.opcTimeoutOn = 3
	updates := make(UpdateChan, 10)
	r := NewRunner(validConfig(5), stub, WithClock(stub.clock.Now), WithUpdates(updates))

	report, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)
	assert.ErrorIs(t, err, ErrAcquisition)
	assert.ErrorIs(t, err, instrument.ErrTimeout)
	assert.NotErrorIs(t, err, ErrTransfer)
	assert.Equal(t, 3, FailedTrial(err))

	assert.Nil(t, report.Trials)
	assert.False(t, report.Complete(5))
	assert.Equal(t, 2, stub.curveCalls)
	assert.Len(t, updates, 2)
}

func TestRunTransferErrorAborts(t *testing.T) {
	stub := newStub()
	stub.truncateOn = 2
	r := NewRunner(validConfig(5), stub, WithClock(stub.clock.Now))

	report, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.ErrorIs(t, err, instrument.ErrTruncatedBlock)
	assert.Equal(t, 2, FailedTrial(err))
	assert.Nil(t, report.Trials)
	assert.Equal(t, 2, stub.curveCalls)
	assert.Equal(t, 2, stub.acquisitions, "no trials after the failed one")
}

func TestRunEmptyCurveIsTransferError(t *testing.T) {
	stub := newStub()
	stub.samples = nil
	_, err := NewRunner(validConfig(2), stub).Run(context.Background())
	assert.ErrorIs(t, err, ErrTransfer)
}

func TestRunArmFailureIsAcquisitionError(t *testing.T) {
	stub := newStub()
	stub.failCommand = cmdSingle
	_, err := NewRunner(validConfig(2), stub).Run(context.Background())
	assert.ErrorIs(t, err, ErrAcquisition)
	assert.NotErrorIs(t, err, ErrAcquisitionTimeout)
	assert.Equal(t, 1, FailedTrial(err))
}

func TestRunCancelledBetweenTrials(t *testing.T) {
	stub := newStub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewRunner(validConfig(3), stub).RunTrials(ctx, Setup{RecordLength: 10, Format: instrument.FormatForWidth(1)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
	assert.Empty(t, stub.calls)
}

func TestRunSendsSnapshots(t *testing.T) {
	stub := newStub()
	stub.transfers = []time.Duration{2 * time.Millisecond}
	updates := make(UpdateChan, 10)
	r := NewRunner(validConfig(3), stub, WithClock(stub.clock.Now), WithUpdates(updates))

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 3)

	var last TrialSnapshot
	for i := 0; i < 3; i++ {
		last = <-updates
	}
	assert.Equal(t, 3, last.Trial)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, int64(3*125000), last.Bytes)
	assert.InDelta(t, float64(2*time.Millisecond), float64(last.P50), float64(10*time.Microsecond))
}

func TestConfigValidateCollectsAllViolations(t *testing.T) {
	cfg := Config{Trials: 0, ByteWidth: 3, SampleRate: -1, HorizontalScale: 1, RecordLength: 1, Source: "CH1"}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, field := range []string{"trials", "byte_width", "sample_rate"} {
		assert.True(t, strings.Contains(msg, field), "missing %s in %q", field, msg)
	}

	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)

	assert.NoError(t, DefaultConfig().Validate())
}
