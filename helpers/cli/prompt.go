package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop runs interactive prompt on terminal, or executes stdin line by line otherwise.
// exec returns false to quit, Ctrl-D on empty line also quits.
func MainLoop(tag string, exec func(line string) bool, complete func(d prompt.Document) []prompt.Suggest) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		ExecReader(os.Stdin, exec)
		return
	}

	history := make([]string, 0, 32)
	// Input returns "" both on empty Enter and on Ctrl-D, key bind tells them apart
	entered := false
	markEnter := func(*prompt.Buffer) { entered = true }
	input := func() (string, bool) {
		entered = false
		line := prompt.Input(tag+"> ", complete,
			prompt.OptionTitle(tag),
			prompt.OptionHistory(history),
			prompt.OptionAddKeyBind(
				prompt.KeyBind{Key: prompt.Enter, Fn: markEnter},
				prompt.KeyBind{Key: prompt.ControlJ, Fn: markEnter},
				prompt.KeyBind{Key: prompt.ControlM, Fn: markEnter},
			),
		)
		if line != "" {
			history = append(history, line)
		}
		return line, line != "" || entered
	}
	InputLoop(input, exec)
}

// InputLoop feeds trimmed non-empty lines to exec.
// Stops when input reports end (Ctrl-D) or exec returns false.
func InputLoop(input func() (line string, ok bool), exec func(line string) bool) {
	for {
		line, ok := input()
		if !ok {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !exec(line) {
			return
		}
	}
}

// ExecReader feeds non-empty trimmed lines to exec until EOF or exec returns false.
func ExecReader(r io.Reader, exec func(line string) bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !exec(line) {
			return
		}
	}
}
