package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

type socketBackend struct {
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

func (b socketBackend) send(ctx context.Context, u *url.URL, data []byte) (err error) {
	addr := u.Host
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "9100")
	}

	dialer := net.Dialer{Timeout: b.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &PrintError{Op: "open", Err: err}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = &PrintError{Op: "close", Err: cerr}
		}
	}()

	deadline := time.Now().Add(b.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return &PrintError{Op: "open", Err: err}
	}
	if _, err := conn.Write(data); err != nil {
		return &PrintError{Op: "write", Err: err}
	}
	return nil
}

type fileBackend struct{}

func (fileBackend) send(_ context.Context, u *url.URL, data []byte) (err error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return &PrintError{Op: "open", Err: errors.New("file uri has no path")}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return &PrintError{Op: "open", Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &PrintError{Op: "close", Err: cerr}
		}
	}()

	if _, err := f.Write(data); err != nil {
		return &PrintError{Op: "write", Err: err}
	}
	return nil
}

// lpBackend hands the job to the CUPS spooler. "-o raw" keeps the filters
// from reinterpreting the ZPL.
type lpBackend struct {
	command      string
	documentName string
}

func (b lpBackend) send(ctx context.Context, u *url.URL, data []byte) error {
	queue := u.Host
	if queue == "" {
		queue = strings.Trim(u.Path, "/")
	}
	if queue == "" {
		return &PrintError{Op: "open", Err: errors.New("lp uri has no queue name")}
	}

	cmd := exec.CommandContext(ctx, b.command, "-d", queue, "-o", "raw", "-t", b.documentName)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotInstalled(err) {
			return &PrintError{Op: "open", Err: err}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return &PrintError{Op: "write", Err: fmt.Errorf("%w: %s", err, msg)}
		}
		return &PrintError{Op: "write", Err: err}
	}
	return nil
}

// isNotInstalled reports whether err means the command binary itself is missing.
func isNotInstalled(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist)
}
