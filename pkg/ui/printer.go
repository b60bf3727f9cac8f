package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LinePrinter is the non-interactive display: one line per message or notice.
type LinePrinter struct {
	mu  sync.Mutex
	out io.Writer
	fmt Formatter
}

func NewLinePrinter(out io.Writer, f Formatter) *LinePrinter {
	return &LinePrinter{out: out, fmt: f}
}

func (p *LinePrinter) Render(user, body string) {
	p.write(p.fmt.Message(user, body))
}

func (p *LinePrinter) Notice(category, detail string) {
	p.write(p.fmt.Notice(category, detail))
}

func (p *LinePrinter) write(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, line)
}

// RunLines sends every non-empty line of r until r is exhausted or ctx is done.
// Send failures are logged and reading continues.
func RunLines(ctx context.Context, r io.Reader, send func(ctx context.Context, body string) error) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return errors.Wrap(err, "read input")
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := send(ctx, line); err != nil {
				log.Warn().Err(err).Str("component", "ui").Msg("send failed")
			}
		}
	}
}
