package tailer

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/nxadm/tail"

	"logsift/internal/parser"
	"logsift/internal/worker"
)

// Sink receives decoded lines.
type Sink interface {
	Submit(ctx context.Context, job worker.Job) error
}

// Options configure a file follower.
type Options struct {
	// FromStart reads the existing content instead of only new lines.
	FromStart bool
	// Poll uses stat polling instead of inotify; safer on bind mounts.
	Poll bool
}

// Follow tails path until ctx is done, surviving rotation and waiting for
// the file to appear. Each line is decoded and submitted as source name.
func Follow(ctx context.Context, name, path string, dec parser.Decoder, sink Sink, opts Options) error {
	cfg := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      opts.Poll,
		Logger:    tail.DiscardingLogger,
	}
	if !opts.FromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	log.Printf("Tailer: following %s as %q", path, name)
	for {
		select {
		case <-ctx.Done():
			if err := t.Stop(); err != nil {
				log.Printf("Tailer: stop %s: %v", path, err)
			}
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				log.Printf("Tailer: error reading line from %s: %v", path, line.Err)
				continue
			}
			text, ok := dec.Decode(line.Text)
			if !ok {
				continue
			}
			if err := sink.Submit(ctx, worker.Job{Source: name, Line: text}); err != nil {
				return nil
			}
		}
	}
}
