package termio

import (
	"io"
	"os"
	"sync"
)

// writer hands output to a background goroutine so that a slow terminal
// never stalls the goroutine reporting progress.
type writer struct {
	file    *os.File
	ch      chan []byte
	pending sync.WaitGroup
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.pending.Add(1)
	w.ch <- buf
	return len(p), nil
}

func (w *writer) File() *os.File {
	return w.file
}

type manager struct {
	once   sync.Once
	stdout *writer
	stderr *writer
}

var global manager

func Init() {
	global.once.Do(func() {
		global.stdout = newWriter(os.Stdout)
		global.stderr = newWriter(os.Stderr)
	})
}

func newWriter(f *os.File) *writer {
	w := &writer{
		file: f,
		ch:   make(chan []byte, 1024),
	}
	go func() {
		for buf := range w.ch {
			_, _ = w.file.Write(buf)
			w.pending.Done()
		}
	}()
	return w
}

// Stdout returns the shared asynchronous stdout writer. It initializes the
// package on first use, so calling Init beforehand is optional.
func Stdout() io.Writer {
	Init()
	return global.stdout
}

// Stderr is Stdout for stderr.
func Stderr() io.Writer {
	Init()
	return global.stderr
}

func StdoutFile() *os.File {
	Init()
	return global.stdout.file
}

func StderrFile() *os.File {
	Init()
	return global.stderr.file
}

// Flush blocks until everything written so far has reached the terminal.
// Call it before os.Exit.
func Flush() {
	Init()
	global.stdout.pending.Wait()
	global.stderr.pending.Wait()
}

// IsTTY reports whether f is a character device.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
