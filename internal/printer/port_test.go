package printer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	s := New(Options{Aliases: map[string]string{
		"zebra": "socket://10.0.0.5:9100",
		"dump":  "file:///tmp/labels.out",
	}})

	tests := []struct {
		target     Target
		wantScheme string
		wantHost   string
		wantPath   string
	}{
		{"zebra", "socket", "10.0.0.5:9100", ""},
		{"dump", "file", "", "/tmp/labels.out"},
		{"Zebra_ZD420", "lp", "Zebra_ZD420", ""},
		{"lp://office", "lp", "office", ""},
		{"socket://printer.local", "socket", "printer.local", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			u, err := s.Resolve(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, u.Scheme)
			assert.Equal(t, tt.wantHost, u.Host)
			assert.Equal(t, tt.wantPath, u.Path)
		})
	}

	_, err := s.Resolve("  ")
	assert.Error(t, err)
}

func TestSendUnknownScheme(t *testing.T) {
	err := New(Options{}).Send(context.Background(), "ipp://nowhere", []byte("^XA^XZ"))

	var pe *PrintError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "resolve", pe.Op)
	assert.Equal(t, Target("ipp://nowhere"), pe.Target)
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestSendSocketWritesOneJobPerCall(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	received := make(chan string, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			b, _ := io.ReadAll(conn)
			_ = conn.Close()
			received <- string(b)
		}
	}()

	s := New(Options{Aliases: map[string]string{"zebra": "socket://" + ln.Addr().String()}})
	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "zebra", []byte("^XA one^XZ")))
	require.NoError(t, s.Send(ctx, "zebra", []byte("^XA two^XZ")))

	for _, want := range []string{"^XA one^XZ", "^XA two^XZ"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestSendSocketUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = New(Options{DialTimeout: time.Second}).Send(context.Background(), Target("socket://"+addr), []byte("^XA^XZ"))

	var pe *PrintError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "open", pe.Op)
}

func TestSendFileAppends(t *testing.T) {
	out := filepath.Join(t.TempDir(), "printer.out")
	s := New(Options{})
	target := Target("file://" + out)

	require.NoError(t, s.Send(context.Background(), target, []byte("^XA a^XZ")))
	require.NoError(t, s.Send(context.Background(), target, []byte("^XA b^XZ")))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "^XA a^XZ^XA b^XZ", string(b))
}

func TestSendFileOpenFailure(t *testing.T) {
	missingDir := filepath.Join(t.TempDir(), "nope", "printer.out")
	err := New(Options{}).Send(context.Background(), Target("file://"+missingDir), []byte("x"))

	var pe *PrintError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "open", pe.Op)
}

func TestSendLPPassesRawOption(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	dir := t.TempDir()
	argsOut := filepath.Join(dir, "args")
	dataOut := filepath.Join(dir, "data")
	script := "#!/bin/sh\necho \"$@\" > " + argsOut + "\ncat > " + dataOut + "\n"
	fake := filepath.Join(dir, "lp")
	require.NoError(t, os.WriteFile(fake, []byte(script), 0o755))

	s := New(Options{LPCommand: fake, DocumentName: "Etiqueta"})
	require.NoError(t, s.Send(context.Background(), "office", []byte("^XA^FDx^FS^XZ")))

	args, err := os.ReadFile(argsOut)
	require.NoError(t, err)
	assert.Equal(t, "-d office -o raw -t Etiqueta\n", string(args))

	data, err := os.ReadFile(dataOut)
	require.NoError(t, err)
	assert.Equal(t, "^XA^FDx^FS^XZ", string(data))
}

func TestSendLPFailureCarriesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "lp")
	script := "#!/bin/sh\ncat >/dev/null\necho 'lp: The printer or class does not exist.' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(fake, []byte(script), 0o755))

	err := New(Options{LPCommand: fake}).Send(context.Background(), "ghost", []byte("^XA^XZ"))

	var pe *PrintError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, Target("ghost"), pe.Target)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSendLPMissingBinary(t *testing.T) {
	err := New(Options{LPCommand: filepath.Join(t.TempDir(), "no-such-lp")}).Send(context.Background(), "office", []byte("x"))

	var pe *PrintError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "open", pe.Op)
}

func TestPrintErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := &PrintError{Target: "zebra", Op: "write", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, `print to "zebra": write: boom`, err.Error())
}

func TestParseQueueList(t *testing.T) {
	out := []byte("Zebra_ZD420\noffice\n\n  warehouse  \n")
	assert.Equal(t, []string{"Zebra_ZD420", "office", "warehouse"}, parseQueueList(out))
}

func TestListMergesAliasesAndQueues(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "lpstat")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\necho zebra\necho office\n"), 0o755))

	old := lpstatCommand
	lpstatCommand = fake
	t.Cleanup(func() { lpstatCommand = old })

	names, err := List(context.Background(), map[string]string{"zebra": "socket://10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"zebra", "office"}, names)
}

func TestListWithoutLpstat(t *testing.T) {
	old := lpstatCommand
	lpstatCommand = filepath.Join(t.TempDir(), "missing")
	t.Cleanup(func() { lpstatCommand = old })

	names, err := List(context.Background(), map[string]string{"b": "x", "a": "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
