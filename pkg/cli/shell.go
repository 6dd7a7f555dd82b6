// Package cli implements an interactive line-command shell over
// pkg/database, grounded on the teacher's pkg/cli shell+REPL pair.
// Unlike the teacher's SQL shell, Strata's commands are single-line —
// there is no statement continuation or quote-tracking to do, so
// Shell here is pared down to line reading plus history.
package cli

import (
	"bufio"
	"io"
	"strings"
)

// Shell reads command lines from input and keeps a bounded history,
// the way the teacher's pkg/cli.Shell does for SQL statements.
type Shell struct {
	reader *bufio.Reader

	output    io.Writer
	errOutput io.Writer

	prompt string

	history      []string
	historyIndex int
	maxHistory   int
}

// NewShell creates a shell reading from input and writing to output.
// If errOutput is nil, errors go to output.
func NewShell(input io.Reader, output, errOutput io.Writer) *Shell {
	var reader *bufio.Reader
	if input != nil {
		reader = bufio.NewReader(input)
	}
	if errOutput == nil {
		errOutput = output
	}
	return &Shell{
		reader:     reader,
		output:     output,
		errOutput:  errOutput,
		prompt:     "strata> ",
		history:    make([]string, 0),
		maxHistory: 1000,
	}
}

// SetPrompt changes the prompt string.
func (s *Shell) SetPrompt(prompt string) { s.prompt = prompt }

// ReadLine reads and trims a single line, reporting whether EOF was reached.
func (s *Shell) ReadLine() (string, bool) {
	if s.reader == nil {
		return "", true
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return strings.TrimRight(line, " \t\r\n"), true
	}
	return strings.TrimRight(line, " \t\r\n"), false
}

// ReadCommand writes the prompt, reads one line, and records it in
// history if non-blank. Returns the line and whether EOF was reached.
func (s *Shell) ReadCommand() (string, bool) {
	if s.output != nil {
		io.WriteString(s.output, s.prompt)
	}
	line, eof := s.ReadLine()
	trimmed := strings.TrimSpace(line)
	if trimmed != "" {
		s.AddHistory(trimmed)
	}
	return trimmed, eof
}

// AddHistory appends stmt to history, skipping an immediate repeat.
func (s *Shell) AddHistory(stmt string) {
	if len(s.history) > 0 && s.history[len(s.history)-1] == stmt {
		return
	}
	s.history = append(s.history, stmt)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.historyIndex = len(s.history)
}

// History returns a copy of the recorded command history.
func (s *Shell) History() []string {
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}
