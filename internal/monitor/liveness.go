package monitor

import (
	"errors"
	"io"
	"os"
)

// Liveness watches the read end of a pipe whose write end is held by the
// monitored process. The pipe carries no data; end of file means every
// holder of the write end has exited.
type Liveness struct {
	r    *os.File
	done chan error
}

// NewLiveness starts watching r. The Liveness owns r.
func NewLiveness(r *os.File) *Liveness {
	l := &Liveness{r: r, done: make(chan error, 1)}
	go l.wait()
	return l
}

// Done receives nil when the pipe is closed by the other side, or the read
// error that ended the watch.
func (l *Liveness) Done() <-chan error {
	return l.done
}

// Close stops the watch and releases the pipe.
func (l *Liveness) Close() error {
	return l.r.Close()
}

func (l *Liveness) wait() {
	buf := make([]byte, 64)
	for {
		_, err := l.r.Read(buf)
		if errors.Is(err, io.EOF) {
			l.done <- nil
			return
		}
		if err != nil {
			l.done <- err
			return
		}
	}
}
