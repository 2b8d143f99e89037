// Package printer sends raw label bytes to a named printer, one job per call.
//
// A target name resolves to a backend URI:
//   - socket://host:port  raw TCP (JetDirect / port 9100)
//   - file:///dev/usb/lp0 device node or plain file, opened for append
//   - lp://queue or a bare queue name, submitted through CUPS `lp -o raw`
//
// Friendly names can be mapped to URIs with aliases. Every Send opens the
// channel, writes the bytes, and closes the channel on all exit paths.
package printer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

//go:generate mockgen -destination=mocks/mock_port.go -package=mocks github.com/mattjoyce/labelspool/internal/printer Port

// Target names a printer. It is opaque to the dispatch path.
type Target string

// Port delivers one job to a printer.
type Port interface {
	Send(ctx context.Context, target Target, data []byte) error
}

// ErrUnknownScheme is returned when a target URI names no backend.
var ErrUnknownScheme = errors.New("unknown printer scheme")

// PrintError is the single failure kind a Port reports.
type PrintError struct {
	Target Target
	Op     string // resolve, open, write, close
	Err    error
}

func (e *PrintError) Error() string {
	return fmt.Sprintf("print to %q: %s: %v", string(e.Target), e.Op, e.Err)
}

func (e *PrintError) Unwrap() error { return e.Err }

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultDocumentName = "label"
	defaultLPCommand    = "lp"
)

// Options configures a Spooler.
type Options struct {
	Aliases      map[string]string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	DocumentName string
	LPCommand    string
}

// Spooler is the production Port. It keeps no queue and no open channels.
type Spooler struct {
	opts     Options
	backends map[string]backend
}

// New creates a Spooler with defaults filled in.
func New(opts Options) *Spooler {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if strings.TrimSpace(opts.DocumentName) == "" {
		opts.DocumentName = defaultDocumentName
	}
	if strings.TrimSpace(opts.LPCommand) == "" {
		opts.LPCommand = defaultLPCommand
	}
	s := &Spooler{opts: opts}
	s.backends = map[string]backend{
		"socket": socketBackend{dialTimeout: opts.DialTimeout, writeTimeout: opts.WriteTimeout},
		"tcp":    socketBackend{dialTimeout: opts.DialTimeout, writeTimeout: opts.WriteTimeout},
		"file":   fileBackend{},
		"lp":     lpBackend{command: opts.LPCommand, documentName: opts.DocumentName},
	}
	return s
}

// Send writes data to target as a single job.
func (s *Spooler) Send(ctx context.Context, target Target, data []byte) error {
	u, err := s.Resolve(target)
	if err != nil {
		return &PrintError{Target: target, Op: "resolve", Err: err}
	}
	b, ok := s.backends[u.Scheme]
	if !ok {
		return &PrintError{Target: target, Op: "resolve", Err: fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)}
	}
	if err := b.send(ctx, u, data); err != nil {
		var pe *PrintError
		if errors.As(err, &pe) {
			pe.Target = target
			return pe
		}
		return &PrintError{Target: target, Op: "write", Err: err}
	}
	return nil
}

// Resolve maps a target name to its backend URI.
func (s *Spooler) Resolve(target Target) (*url.URL, error) {
	name := strings.TrimSpace(string(target))
	if name == "" {
		return nil, errors.New("printer name is empty")
	}
	if uri, ok := s.opts.Aliases[name]; ok {
		name = strings.TrimSpace(uri)
	}
	if !strings.Contains(name, "://") {
		return &url.URL{Scheme: "lp", Host: name}, nil
	}
	u, err := url.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("parse printer uri %q: %w", name, err)
	}
	return u, nil
}

// backend performs one open/write/close cycle.
type backend interface {
	send(ctx context.Context, u *url.URL, data []byte) error
}
