package dummy

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scopebench/internal/instrument"
)

// ServerConfig controls the simulated oscilloscope.
type ServerConfig struct {
	Port int // 0 picks a free port
	ID   string

	// Actual record length is rounded down to a multiple of RecordGranularity
	// and clamped to MaxRecordLength.
	RecordGranularity int
	MaxRecordLength   int

	AcquireDelay time.Duration // time before *OPC? answers
	Throughput   int64         // curve bytes per second, 0 = unlimited

	// Fault injection, by 1-based acquisition number. 0 disables.
	StallOnAcquisition    int
	TruncateOnAcquisition int

	Logger zerolog.Logger
}

// Server is a minimal SCPI oscilloscope on a TCP socket.
type Server struct {
	cfg ServerConfig
	ln  net.Listener
	log zerolog.Logger

	mu           sync.Mutex
	state        scopeState
	received     []string
	acquisitions int

	wg     sync.WaitGroup
	closed chan struct{}
}

type scopeState struct {
	sampleRate   float64
	scale        float64
	mode         string
	recordLength int
	encoding     string
	source       string
	start        int
	stop         int
	byteWidth    int
	stopAfter    string
	running      bool
}

// Start listens on cfg.Port and serves connections until Close.
func Start(cfg ServerConfig) (*Server, error) {
	if cfg.ID == "" {
		cfg.ID = "TEKTRONIX,MSO24,SIM0001,CF:91.1CT FV:1.42.0.219"
	}
	if cfg.RecordGranularity <= 0 {
		cfg.RecordGranularity = 1
	}
	if cfg.MaxRecordLength <= 0 {
		cfg.MaxRecordLength = 62_500_000
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg: cfg,
		ln:  ln,
		log: cfg.Logger.With().Str("component", "dummy").Logger(),
		state: scopeState{
			mode:         "AUTO",
			recordLength: 10_000,
			encoding:     "RIBINARY",
			source:       "CH1",
			start:        1,
			stop:         10_000,
			byteWidth:    1,
			stopAfter:    "RUNSTOP",
			running:      true,
		},
		closed: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("simulated oscilloscope listening")
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Resource returns the VISA socket resource string for this server.
func (s *Server) Resource() string {
	host, port, _ := net.SplitHostPort(s.Addr())
	return fmt.Sprintf("TCPIP0::%s::%s::SOCKET", host, port)
}

// Received returns every program message unit seen so far, with inherited headers expanded.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Server) Acquisitions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquisitions
}

func (s *Server) Close() error {
	close(s.closed)
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.log.Error().Err(err).Msg("accept failed")
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	go func() {
		<-s.closed
		conn.Close()
	}()

	rd := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for _, unit := range splitUnits(line) {
			resp, action := s.handle(unit)
			switch action {
			case actionStall:
				// never answered; the client is expected to time out
				continue
			case actionHangup:
				w.Write(resp)
				w.Flush()
				return
			}
			if resp == nil {
				continue
			}
			if err := s.throttle(w, resp); err != nil {
				return
			}
		}
	}
}

func (s *Server) throttle(w *bufio.Writer, resp []byte) error {
	if s.cfg.Throughput > 0 && len(resp) > 1024 {
		time.Sleep(time.Duration(float64(len(resp)) / float64(s.cfg.Throughput) * float64(time.Second)))
	}
	if _, err := w.Write(resp); err != nil {
		return err
	}
	return w.Flush()
}

// splitUnits splits a compound program message on ';' and expands headers
// that inherit the path of the preceding unit.
func splitUnits(line string) []string {
	parts := strings.Split(line, ";")
	units := make([]string, 0, len(parts))
	prefix := ""
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ":") && !strings.HasPrefix(p, "*") && prefix != "" {
			p = prefix + p
		}
		p = strings.TrimPrefix(p, ":")

		header := p
		if i := strings.IndexByte(p, ' '); i >= 0 {
			header = p[:i]
		}
		if !strings.HasPrefix(header, "*") {
			if i := strings.LastIndexByte(header, ':'); i >= 0 {
				prefix = header[:i+1]
			} else {
				prefix = ""
			}
		}
		units = append(units, p)
	}
	return units
}

type action int

const (
	actionReply action = iota
	actionStall
	actionHangup
)

type handler struct {
	pattern string
	fn      func(s *Server, arg string, query bool) ([]byte, action)
}

var handlers = []handler{
	{"*IDN", func(s *Server, _ string, _ bool) ([]byte, action) { return line(s.cfg.ID), actionReply }},
	{"*CLS", noop},
	{"*ESR", func(_ *Server, _ string, _ bool) ([]byte, action) { return line("0"), actionReply }},
	{"ALLEv", func(_ *Server, _ string, _ bool) ([]byte, action) {
		return line(`0,"No events to report - queue empty"`), actionReply
	}},
	{"HEADer", noop},
	{"*OPC", (*Server).opc},
	{"HORizontal:SAMPLERate:ANALYZemode:MINimum:VALue", floatSetting(func(st *scopeState) *float64 { return &st.sampleRate })},
	{"HORizontal:MODE:SCAle", floatSetting(func(st *scopeState) *float64 { return &st.scale })},
	{"HORizontal:MODE", func(s *Server, arg string, query bool) ([]byte, action) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if query {
			return line(s.state.mode), actionReply
		}
		s.state.mode = strings.ToUpper(arg)
		return nil, actionReply
	}},
	{"HORizontal:MODE:RECOrdlength", (*Server).recordLength},
	{"HORizontal:RECOrdlength", (*Server).recordLength},
	{"DATa:ENCdg", stringSetting(func(st *scopeState) *string { return &st.encoding })},
	{"DATa:SOUrce", stringSetting(func(st *scopeState) *string { return &st.source })},
	{"DATa:STARt", intSetting(func(st *scopeState) *int { return &st.start })},
	{"DATa:STOP", intSetting(func(st *scopeState) *int { return &st.stop })},
	{"WFMOutpre:BYT_Nr", intSetting(func(st *scopeState) *int { return &st.byteWidth })},
	{"ACQuire:STOPAfter", stringSetting(func(st *scopeState) *string { return &st.stopAfter })},
	{"ACQuire:STATE", (*Server).acquireState},
	{"CURVe", (*Server).curve},
}

func (s *Server) handle(unit string) ([]byte, action) {
	header, arg := unit, ""
	if i := strings.IndexByte(unit, ' '); i >= 0 {
		header, arg = unit[:i], strings.TrimSpace(unit[i+1:])
	}
	query := strings.HasSuffix(header, "?")
	header = strings.TrimSuffix(header, "?")

	s.mu.Lock()
	s.received = append(s.received, unit)
	s.mu.Unlock()

	for _, h := range handlers {
		if matchHeader(h.pattern, header) {
			return h.fn(s, arg, query)
		}
	}
	s.log.Warn().Str("unit", unit).Msg("unknown command")
	return nil, actionReply
}

func (s *Server) opc(_ string, _ bool) ([]byte, action) {
	s.mu.Lock()
	n := s.acquisitions
	s.mu.Unlock()

	if s.cfg.StallOnAcquisition > 0 && n == s.cfg.StallOnAcquisition {
		s.log.Debug().Int("acquisition", n).Msg("stalling *OPC?")
		return nil, actionStall
	}
	if s.cfg.AcquireDelay > 0 {
		time.Sleep(s.cfg.AcquireDelay)
	}
	s.mu.Lock()
	s.state.running = false
	s.mu.Unlock()
	return line("1"), actionReply
}

func (s *Server) recordLength(arg string, query bool) ([]byte, action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if query {
		return line(strconv.Itoa(s.state.recordLength)), actionReply
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, actionReply
	}
	n := int(v) / s.cfg.RecordGranularity * s.cfg.RecordGranularity
	if n < s.cfg.RecordGranularity {
		n = s.cfg.RecordGranularity
	}
	if n > s.cfg.MaxRecordLength {
		n = s.cfg.MaxRecordLength
	}
	s.state.recordLength = n
	return nil, actionReply
}

func (s *Server) acquireState(arg string, query bool) ([]byte, action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if query {
		if s.state.running {
			return line("1"), actionReply
		}
		return line("0"), actionReply
	}
	switch strings.ToUpper(arg) {
	case "ON", "1", "RUN":
		s.state.running = true
		s.acquisitions++
	default:
		s.state.running = false
	}
	return nil, actionReply
}

func (s *Server) curve(_ string, _ bool) ([]byte, action) {
	s.mu.Lock()
	st := s.state
	n := s.acquisitions
	s.mu.Unlock()

	stop := st.stop
	if stop > st.recordLength {
		stop = st.recordLength
	}
	points := stop - st.start + 1
	if points < 0 {
		points = 0
	}
	width := st.byteWidth
	if width != 2 {
		width = 1
	}

	payload := make([]byte, points*width)
	for i := 0; i < points; i++ {
		// square wave resembling the probe compensation signal
		v := int16(-100)
		if (i/500)%2 == 0 {
			v = 100
		}
		if width == 1 {
			payload[i] = byte(int8(v))
		} else {
			payload[2*i] = byte(uint16(v*100) >> 8)
			payload[2*i+1] = byte(uint16(v * 100))
		}
	}

	block := instrument.EncodeBlock(payload)
	if s.cfg.TruncateOnAcquisition > 0 && n == s.cfg.TruncateOnAcquisition {
		s.log.Debug().Int("acquisition", n).Msg("truncating curve")
		return block[:len(block)/2], actionHangup
	}
	return block, actionReply
}

func noop(_ *Server, _ string, _ bool) ([]byte, action) {
	return nil, actionReply
}

func line(s string) []byte {
	return []byte(s + "\n")
}

func floatSetting(field func(*scopeState) *float64) func(*Server, string, bool) ([]byte, action) {
	return func(s *Server, arg string, query bool) ([]byte, action) {
		s.mu.Lock()
		defer s.mu.Unlock()
		p := field(&s.state)
		if query {
			return line(strconv.FormatFloat(*p, 'E', 4, 64)), actionReply
		}
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			*p = v
		}
		return nil, actionReply
	}
}

func intSetting(field func(*scopeState) *int) func(*Server, string, bool) ([]byte, action) {
	return func(s *Server, arg string, query bool) ([]byte, action) {
		s.mu.Lock()
		defer s.mu.Unlock()
		p := field(&s.state)
		if query {
			return line(strconv.Itoa(*p)), actionReply
		}
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			*p = int(v)
		}
		return nil, actionReply
	}
}

func stringSetting(field func(*scopeState) *string) func(*Server, string, bool) ([]byte, action) {
	return func(s *Server, arg string, query bool) ([]byte, action) {
		s.mu.Lock()
		defer s.mu.Unlock()
		p := field(&s.state)
		if query {
			return line(*p), actionReply
		}
		*p = strings.ToUpper(arg)
		return nil, actionReply
	}
}

// matchHeader compares a SCPI header against a mnemonic pattern such as
// "HORizontal:MODE:SCAle". Each node may be given in short (upper case part)
// or long form, case-insensitively.
func matchHeader(pattern, header string) bool {
	pn := strings.Split(strings.TrimPrefix(pattern, ":"), ":")
	hn := strings.Split(strings.TrimPrefix(header, ":"), ":")
	if len(pn) != len(hn) {
		return false
	}
	for i := range pn {
		got := strings.ToUpper(hn[i])
		long := strings.ToUpper(pn[i])
		if got != long && got != shortForm(pn[i]) {
			return false
		}
	}
	return true
}

func shortForm(node string) string {
	var b strings.Builder
	for _, r := range node {
		if r >= 'a' && r <= 'z' {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
