package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/lipgloss/v2"
)

var frameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

// Spinner animates a line of w while a long operation runs. It uses the
// frames of the bubbles spinners without starting a full program.
type Spinner struct {
	w       io.Writer
	frames  []string
	message string

	mu      sync.Mutex
	running bool

	stop   sync.Once
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{
		w:      w,
		frames: spinner.MiniDot.Frames,
		ticker: time.NewTicker(spinner.MiniDot.FPS),
		done:   make(chan struct{}),
	}
}

func (s *Spinner) SetMessage(msg string) {
	msg = strings.TrimSpace(msg)
	msg = strings.TrimRight(msg, ".")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
}

func (s *Spinner) Run(fn func()) {
	s.Start()
	defer s.Stop()
	fn()
}

func (s *Spinner) Stop() {
	s.stop.Do(func() {
		close(s.done)
		s.ticker.Stop()
		s.wg.Wait()
		clearLine(s.w)
	})
}

func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.run()
}

func (s *Spinner) run() {
	defer s.wg.Done()
	for i := 0; ; i++ {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()

			f := frameStyle.Render(s.frames[i%len(s.frames)])
			if msg != "" {
				f = fmt.Sprintf("%s %s...", f, msg)
			}
			io.WriteString(s.w, "\r"+f)
		case <-s.done:
			return
		}
	}
}

func clearLine(w io.Writer) {
	io.WriteString(w, "\x1b[0G\x1b[2K\x1b[0G")
}
