package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"devicepair/internal/domain"
)

// Console speaks dialogs as text lines and treats input lines as recognized
// utterances. A line that arrives while no question is pending goes to the
// utterance handler instead.
type Console struct {
	catalog *Catalog
	logger  *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	mu          sync.Mutex
	pending     chan string
	interrupt   chan struct{}
	onUtterance func(string)
}

// NewConsole starts reading lines from in.
func NewConsole(in io.Reader, out io.Writer, catalog *Catalog, logger *slog.Logger) *Console {
	c := &Console{
		catalog:   catalog,
		logger:    logger,
		out:       out,
		interrupt: make(chan struct{}),
	}
	go c.readLoop(in)
	return c
}

// SetUtteranceHandler installs the receiver of unsolicited input.
func (c *Console) SetUtteranceHandler(fn func(utterance string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUtterance = fn
}

// Speak implements domain.Voice.
func (c *Console) Speak(ctx context.Context, dialog string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.print("> " + c.catalog.Render(dialog, data))
}

// Ask implements domain.Voice. Stop makes a pending Ask return an empty
// answer.
func (c *Console) Ask(ctx context.Context, dialog string, data map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.print("? " + c.catalog.Render(dialog, data)); err != nil {
		return "", err
	}

	answer := make(chan string, 1)
	c.mu.Lock()
	c.pending = answer
	interrupt := c.interrupt
	c.mu.Unlock()
	defer c.clearPending(answer)

	select {
	case line := <-answer:
		return strings.TrimSpace(line), nil
	case <-interrupt:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop implements domain.Voice.
func (c *Console) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.interrupt)
	c.interrupt = make(chan struct{})
}

func (c *Console) clearPending(ch chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == ch {
		c.pending = nil
	}
}

func (c *Console) readLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.dispatch(line)
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("console input closed", "error", err)
	}
}

func (c *Console) dispatch(line string) {
	c.mu.Lock()
	if ch := c.pending; ch != nil {
		c.pending = nil
		c.mu.Unlock()
		ch <- line
		return
	}
	handler := c.onUtterance
	c.mu.Unlock()

	if handler != nil {
		handler(line)
		return
	}
	c.logger.Debug("unhandled utterance", "utterance", line)
}

func (c *Console) print(text string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := fmt.Fprintln(c.out, text); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}

var _ domain.Voice = (*Console)(nil)
