package runner

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"scopebench/internal/instrument"
)

const recordLengthQuery = "HORizontal:RECOrdlength?"

// Configure programs the horizontal system and the curve transfer format.
// Order matters: manual mode must be set before the record length, and the
// transfer stop point comes from the record length the instrument reports.
func Configure(sess Session, cfg Config) (Setup, error) {
	command := func(step int, name, cmd string) error {
		if err := sess.Command(cmd); err != nil {
			return &ConfigurationError{Step: step, Name: name, Command: cmd, Err: err}
		}
		return nil
	}

	if err := command(1, "sample rate", "HORizontal:SAMPLERate:ANALYZemode:MINimum:VALue "+formatFloat(cfg.SampleRate)); err != nil {
		return Setup{}, err
	}
	if err := command(2, "horizontal scale", "HORizontal:MODE:SCAle "+formatFloat(cfg.HorizontalScale)); err != nil {
		return Setup{}, err
	}
	if err := command(3, "horizontal mode", "HORizontal:MODE MANual"); err != nil {
		return Setup{}, err
	}
	if err := command(4, "record length", "HORizontal:MODE:RECOrdlength "+strconv.Itoa(cfg.RecordLength)); err != nil {
		return Setup{}, err
	}

	for _, cmd := range []string{
		"DATa:ENCdg SRIBINARY",
		"DATa:SOUrce " + cfg.Source,
		"DATa:STARt 1",
	} {
		if err := command(5, "curve range", cmd); err != nil {
			return Setup{}, err
		}
	}

	resp, err := sess.Query(recordLengthQuery)
	if err != nil {
		return Setup{}, &ConfigurationError{Step: 5, Name: "curve range", Command: recordLengthQuery, Err: err}
	}
	actual, err := parseRecordLength(resp)
	if err != nil {
		return Setup{}, &ConfigurationError{Step: 5, Name: "curve range", Command: recordLengthQuery, Err: err}
	}
	if err := command(5, "curve range", "DATa:STOP "+strconv.Itoa(actual)); err != nil {
		return Setup{}, err
	}

	if err := command(6, "byte width", "WFMOutpre:BYT_Nr "+strconv.Itoa(cfg.ByteWidth)); err != nil {
		return Setup{}, err
	}

	return Setup{
		RecordLength: actual,
		Format:       instrument.FormatForWidth(cfg.ByteWidth),
	}, nil
}

func parseRecordLength(resp string) (int, error) {
	s := strings.TrimSpace(resp)
	n, err := strconv.Atoi(s)
	if err != nil {
		// some firmware answers in NR3 form, e.g. 1.2500E+5
		f, ferr := strconv.ParseFloat(s, 64)
		// the range check also rejects NaN and Inf before conversion
		if ferr != nil || !(f > 0 && f <= math.MaxInt32) {
			return 0, fmt.Errorf("unexpected record length %q", resp)
		}
		n = int(f)
	}
	if n <= 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("unexpected record length %q", resp)
	}
	return n, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
