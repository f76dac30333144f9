// Package prompt asks the user questions on the console.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrNoChoice is returned when input ends before a valid answer
var ErrNoChoice = errors.New("no choice made")

// Prompter reads answers from an input stream
type Prompter interface {
	PromptString(message string) (string, error)
	PromptSecret(message string) (string, error)
	PromptConfirm(message string) (bool, error)
	Choose(ctx context.Context, message string, options []string, def int) (int, error)
}

// ConsolePrompter prompts on a reader/writer pair, usually stdin/stderr
type ConsolePrompter struct {
	reader *bufio.Reader
	out    io.Writer
	fd     int // -1 when the input is not a file
}

// NewConsolePrompter prompts on stdin, writing questions to stderr
func NewConsolePrompter() *ConsolePrompter {
	return &ConsolePrompter{
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stderr,
		fd:     int(os.Stdin.Fd()),
	}
}

// NewPrompter prompts on in, writing questions to out
func NewPrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	fd := -1
	if f, ok := in.(*os.File); ok {
		fd = int(f.Fd())
	}
	return &ConsolePrompter{reader: bufio.NewReader(in), out: out, fd: fd}
}

// Interactive reports whether input comes from a terminal
func (p *ConsolePrompter) Interactive() bool {
	return p.fd >= 0 && term.IsTerminal(p.fd)
}

// PromptString prompts the user for a line of input
func (p *ConsolePrompter) PromptString(message string) (string, error) {
	fmt.Fprint(p.out, message)
	return p.readLine()
}

// PromptSecret prompts for input without echoing it on a terminal
func (p *ConsolePrompter) PromptSecret(message string) (string, error) {
	fmt.Fprint(p.out, message)

	if !p.Interactive() {
		return p.readLine()
	}

	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// PromptConfirm prompts for yes/no confirmation, defaulting to no
func (p *ConsolePrompter) PromptConfirm(message string) (bool, error) {
	input, err := p.PromptString(fmt.Sprintf("%s [y/N]: ", message))
	if err != nil {
		return false, err
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes", nil
}

// Choose lists options and returns the index picked. An empty answer picks
// def. Invalid answers are asked again. When ctx ends first, ctx.Err() is
// returned; the pending read is abandoned.
func (p *ConsolePrompter) Choose(ctx context.Context, message string, options []string, def int) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("no options")
	}
	if def < 0 || def >= len(options) {
		def = 0
	}

	type answer struct {
		idx int
		err error
	}
	result := make(chan answer, 1)

	go func() {
		for {
			fmt.Fprintln(p.out, message)
			for i, opt := range options {
				marker := " "
				if i == def {
					marker = "*"
				}
				fmt.Fprintf(p.out, " %s %d) %s\n", marker, i+1, opt)
			}
			fmt.Fprintf(p.out, "Choose [%d]: ", def+1)

			line, err := p.readLine()
			if err != nil && line == "" {
				if err == io.EOF {
					err = ErrNoChoice
				}
				result <- answer{-1, err}
				return
			}
			if line == "" {
				result <- answer{def, nil}
				return
			}
			if idx, ok := matchOption(line, options); ok {
				result <- answer{idx, nil}
				return
			}
			fmt.Fprintf(p.out, "Invalid choice %q\n", line)
			if err != nil {
				result <- answer{-1, ErrNoChoice}
				return
			}
		}
	}()

	select {
	case a := <-result:
		return a.idx, a.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// matchOption accepts a 1-based number or a case-insensitive option prefix
func matchOption(input string, options []string) (int, bool) {
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return -1, false
	}

	input = strings.ToLower(input)
	match := -1
	for i, opt := range options {
		if strings.HasPrefix(strings.ToLower(opt), input) {
			if match >= 0 {
				return -1, false // ambiguous
			}
			match = i
		}
	}
	return match, match >= 0
}

func (p *ConsolePrompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line != "" && err == io.EOF {
		return line, nil
	}
	return line, err
}
