package auth

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PasswordReader reads a password without echo after showing a prompt.
type PasswordReader interface {
	ReadPassword(prompt string) ([]byte, error)
}

// TTYPasswordReader prompts on the controlling terminal. Using /dev/tty
// rather than stdin keeps the prompt working when stdin is redirected.
type TTYPasswordReader struct{}

// ReadPassword implements PasswordReader.
func (*TTYPasswordReader) ReadPassword(prompt string) ([]byte, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	defer func() {
		_ = tty.Close()
	}()

	if _, err := tty.WriteString(prompt); err != nil {
		return nil, err
	}
	password, err := term.ReadPassword(int(tty.Fd()))
	// the echo-less read swallows the user's newline
	_, _ = tty.WriteString("\n")
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}
