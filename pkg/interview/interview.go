// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package interview

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Interviewer asks the operator questions on behalf of the engine.
type Interviewer interface {
	// Ask returns the answer to prompt, or def when the answer is empty.
	Ask(prompt, def string) (string, error)
	// Confirm returns whether the operator agreed to continue.
	Confirm(prompt string) (bool, error)
}

// Batch answers every question with its default.
type Batch struct{}

// Ask implements Interviewer.
func (Batch) Ask(_, def string) (string, error) { return def, nil }

// Confirm implements Interviewer.
func (Batch) Confirm(string) (bool, error) { return true, nil }

// Console prompts on a terminal. When input is not a terminal it behaves
// like Batch.
type Console struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewConsole returns a Console reading stdin and prompting on stderr.
func NewConsole() *Console {
	return NewConsoleFrom(os.Stdin, os.Stderr, term.IsTerminal(int(os.Stdin.Fd())))
}

// NewConsoleFrom returns a Console over arbitrary streams.
func NewConsoleFrom(in io.Reader, out io.Writer, interactive bool) *Console {
	return &Console{in: bufio.NewReader(in), out: out, interactive: interactive}
}

func (c *Console) readLine(prompt string) (string, error) {
	if _, err := fmt.Fprint(c.out, prompt); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Ask implements Interviewer.
func (c *Console) Ask(prompt, def string) (string, error) {
	if !c.interactive {
		slog.Debug("not a terminal, using default answer", "prompt", prompt, "default", def)
		return def, nil
	}
	p := prompt + ": "
	if def != "" {
		p = fmt.Sprintf("%s [%s]: ", prompt, def)
	}
	answer, err := c.readLine(p)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm implements Interviewer. Only y and yes agree; an empty answer
// declines.
func (c *Console) Confirm(prompt string) (bool, error) {
	if !c.interactive {
		return true, nil
	}
	answer, err := c.readLine(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
