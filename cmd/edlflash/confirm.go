package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// confirmSensitive asks the operator to confirm a write/erase against a
// partition matched by the deny-list (spec §6: raw-mode y/N prompt,
// grounded on bindicator's cmd/cli use of x/term for console auth).
// Reading a single raw keypress lets "y"/"n" answer without a trailing
// Enter; stdin that is not a terminal (scripted/piped invocations) falls
// back to a line-buffered read instead of failing outright.
func confirmSensitive(name string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%q matches the protected-partition list. Continue? [y/N] ", name)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		return strings.EqualFold(strings.TrimSpace(line), "y"), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return false, fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return buf[0] == 'y' || buf[0] == 'Y', nil
}
