package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter asks for credentials on an interactive terminal.
type Prompter struct {
	In  *bufio.Scanner
	Out io.Writer
	// ReadPassword reads a line without echo. When nil the password is
	// read from In like any other line.
	ReadPassword func() ([]byte, error)
}

// Credentials prompts for a username and a password.
func (p *Prompter) Credentials() (username, password string, err error) {
	fmt.Fprint(p.Out, "Username: ")
	if !p.In.Scan() {
		return "", "", inputErr(p.In.Err())
	}
	username = strings.TrimSpace(p.In.Text())

	fmt.Fprint(p.Out, "Password: ")
	if p.ReadPassword != nil {
		b, err := p.ReadPassword()
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		return username, string(b), nil
	}
	if !p.In.Scan() {
		return "", "", inputErr(p.In.Err())
	}
	return username, p.In.Text(), nil
}

func inputErr(err error) error {
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return errors.New("read input: unexpected end of input")
}
