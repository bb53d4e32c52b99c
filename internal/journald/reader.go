package journald

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"

	"logsift/internal/parser"
	"logsift/internal/worker"
)

// Sink receives decoded lines.
type Sink interface {
	Submit(ctx context.Context, job worker.Job) error
}

// Reader follows the systemd journal through journalctl. It requires
// access to the host journal (socket or /var/log/journal mount).
type Reader struct {
	Name    string
	Command []string
	Decoder parser.Decoder
}

func NewReader(name string, dec parser.Decoder) *Reader {
	return &Reader{
		Name:    name,
		Command: []string{"journalctl", "-f", "-o", "json", "--no-pager"},
		Decoder: dec,
	}
}

// Run streams journal records into sink until ctx is done or journalctl exits.
func (r *Reader) Run(ctx context.Context, sink Sink) error {
	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("journald: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("journald: start %s (is it installed/accessible?): %w", r.Command[0], err)
	}

	log.Printf("Journald: started monitoring via %s", r.Command[0])
	scanErr := r.scan(ctx, stdout, sink)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return scanErr
	}
	if waitErr != nil {
		return fmt.Errorf("journald: command exited: %w", waitErr)
	}
	return nil
}

func (r *Reader) scan(ctx context.Context, in io.Reader, sink Sink) error {
	err := parser.ReadRecords(in, func(record string) bool {
		line, ok := r.Decoder.Decode(record)
		if !ok {
			return true
		}
		return sink.Submit(ctx, worker.Job{Source: r.Name, Line: line}) == nil
	})
	if err != nil {
		return fmt.Errorf("journald: read: %w", err)
	}
	return nil
}
