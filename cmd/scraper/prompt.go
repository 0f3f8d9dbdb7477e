package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"fbscrape/internal/config"
)

// prompter asks the operator for input on the terminal. A single goroutine
// reads stdin and hands lines out over a channel, so a prompt abandoned on
// cancellation leaves no reader behind that could take a later answer.
type prompter struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, lines: make(chan lineResult)}
}

func (p *prompter) readLoop() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			p.lines <- lineResult{err: err}
			return
		}
		p.lines <- lineResult{line: strings.TrimSpace(line)}
		if err != nil {
			return
		}
	}
}

// readLine waits for the next input line or for ctx to be done.
func (p *prompter) readLine(ctx context.Context) (string, error) {
	p.once.Do(func() { go p.readLoop() })
	select {
	case r, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TargetURL asks until a valid Facebook URL is entered.
func (p *prompter) TargetURL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		fmt.Fprint(p.out, "Facebook group, page or post URL: ")
		u, err := p.readLine(context.Background())
		if err != nil {
			return "", fmt.Errorf("failed to read URL: %w", err)
		}
		if u == "" {
			fmt.Fprintln(p.out, "URL must not be empty.")
			continue
		}
		if err := config.ValidateURL(u); err != nil {
			fmt.Fprintf(p.out, "%v. Expected something like https://www.facebook.com/groups/123.\n", err)
			continue
		}
		return u, nil
	}
}

// MaxPosts asks for the post limit. Empty or invalid input gives def.
func (p *prompter) MaxPosts(def int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "Maximum posts to collect (default %d): ", def)
	s, err := p.readLine(context.Background())
	if err != nil || s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		fmt.Fprintf(p.out, "Using the default of %d posts.\n", def)
		return def
	}
	return n
}

// WaitForLogin blocks until the operator presses Enter or ctx is done.
func (p *prompter) WaitForLogin(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, strings.Repeat("=", 50))
	fmt.Fprintln(p.out, "Log in to Facebook in the browser window.")
	fmt.Fprintln(p.out, "Press Enter here once the feed is visible...")
	fmt.Fprintln(p.out, strings.Repeat("=", 50))

	_, err := p.readLine(ctx)
	return err
}
