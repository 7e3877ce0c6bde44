package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	promptText  = "Enter file name to upload or type 'quit' to quit: "
	quitCommand = "quit"
)

// Prompt reads batches of whitespace-separated paths, one batch per line,
// and starts an upload per path without waiting for earlier ones.
type Prompt struct {
	up          *Uploader
	in          io.Reader
	interactive bool

	outMu sync.Mutex
	out   io.Writer

	wg sync.WaitGroup
}

// NewPrompt builds a prompt. The prompt text is only printed when
// interactive is set, so piped input produces clean output.
func NewPrompt(up *Uploader, in io.Reader, out io.Writer, interactive bool) *Prompt {
	return &Prompt{up: up, in: in, out: out, interactive: interactive}
}

// Run returns after "quit", end of input or cancellation of ctx, once
// every started upload has finished. Cancellation returns ctx.Err().
func (p *Prompt) Run(ctx context.Context) error {
	defer p.wg.Wait()

	done := make(chan struct{})
	defer close(done)
	lines, scanErr := p.scan(done)

	for {
		if p.interactive {
			p.print(promptText)
		}

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = strings.TrimSpace(l)
		}

		if strings.EqualFold(line, quitCommand) {
			return nil
		}
		for _, path := range strings.Fields(line) {
			p.launch(ctx, path)
		}
	}
}

// scan feeds input lines to a channel so Run can wait on ctx at the same
// time. A read blocked on the input is left behind once Run returns.
func (p *Prompt) scan(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()
	return lines, errc
}

func (p *Prompt) launch(ctx context.Context, path string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		n, err := p.up.Upload(ctx, path)
		p.report(Result{Path: path, Bytes: n, Err: err})
	}()
}

func (p *Prompt) report(res Result) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	fmt.Fprintln(p.out, FormatResult(res))
}

func (p *Prompt) print(s string) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	fmt.Fprint(p.out, s)
}

// FormatResult renders a per-file outcome for the console.
func FormatResult(res Result) string {
	switch {
	case res.Err == nil:
		return fmt.Sprintf("Uploaded %s (%d bytes)", res.Path, res.Bytes)
	case errors.Is(res.Err, ErrNotRegularFile):
		return "File not found or is a directory: " + res.Path
	case errors.Is(res.Err, ErrRejected):
		return "Invalid file or file format, upload of " + res.Path + " failed"
	default:
		return fmt.Sprintf("Error uploading file %s: %v", res.Path, res.Err)
	}
}
