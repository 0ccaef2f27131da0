package runner

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"scopebench/internal/instrument"
	"scopebench/internal/stats"
)

// Config fully determines the instrument setup and the decode format.
// It must not change once a run has started.
type Config struct {
	SampleRate      float64 `json:"sample_rate" mapstructure:"sample_rate" validate:"gt=0"`
	HorizontalScale float64 `json:"horizontal_scale" mapstructure:"horizontal_scale" validate:"gt=0"`
	RecordLength    int     `json:"record_length" mapstructure:"record_length" validate:"gt=0"`
	Trials          int     `json:"trials" mapstructure:"trials" validate:"gt=0"`
	ByteWidth       int     `json:"byte_width" mapstructure:"byte_width" validate:"oneof=1 2"`
	Source          string  `json:"source" mapstructure:"source" validate:"oneof=CH1 CH2 CH3 CH4"`
}

// DefaultConfig mirrors the parameters the transfer rate test was written around.
func DefaultConfig() Config {
	return Config{
		SampleRate:      25e6,
		HorizontalScale: 4e-4,
		RecordLength:    125_000,
		Trials:          1000,
		ByteWidth:       1,
		Source:          "CH1",
	}
}

// Setup is what the instrument actually agreed to after configuration.
type Setup struct {
	RecordLength int
	Format       instrument.SampleFormat
}

// Session is the part of an instrument connection the benchmark needs.
type Session interface {
	Command(cmd string) error
	Query(cmd string) (string, error)
	QueryBinary(cmd string, f instrument.SampleFormat) ([]int16, error)
}

// TrialSnapshot is sent over the update channel after every trial
type TrialSnapshot struct {
	Trial int
	Total int
	Last  stats.TrialResult
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
	Bytes int64
}

// UpdateChan is the channel type
type UpdateChan chan TrialSnapshot

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks every field and returns all violations at once.
func (c Config) Validate() error {
	var result *multierror.Error

	finite := []struct {
		field string
		v     float64
	}{{"sample_rate", c.SampleRate}, {"horizontal_scale", c.HorizontalScale}}
	for _, f := range finite {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			result = multierror.Append(result, &InvalidConfigError{Field: f.field, Reason: "must be a finite number"})
		}
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &InvalidConfigError{Field: "config", Reason: err.Error()}
		}
		for _, fe := range verrs {
			result = multierror.Append(result, &InvalidConfigError{Field: fe.Field(), Reason: reason(fe)})
		}
	}
	return result.ErrorOrNil()
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
