package client

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter_Credentials(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{In: bufio.NewScanner(strings.NewReader("  alice123 \nsecret1\n")), Out: &out}

	username, password, err := p.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "alice123", username)
	assert.Equal(t, "secret1", password)
	assert.Equal(t, "Username: Password: ", out.String())
}

func TestPrompter_ReadPassword(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{
		In:           bufio.NewScanner(strings.NewReader("alice123\n")),
		Out:          &out,
		ReadPassword: func() ([]byte, error) { return []byte("hidden"), nil },
	}

	_, password, err := p.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "hidden", password)

	p.In = bufio.NewScanner(strings.NewReader("alice123\n"))
	p.ReadPassword = func() ([]byte, error) { return nil, errors.New("not a tty") }
	_, _, err = p.Credentials()
	assert.Error(t, err)
}

func TestPrompter_EOF(t *testing.T) {
	p := &Prompter{In: bufio.NewScanner(strings.NewReader("")), Out: &bytes.Buffer{}}
	_, _, err := p.Credentials()
	assert.EqualError(t, err, "read input: unexpected end of input")

	p = &Prompter{In: bufio.NewScanner(strings.NewReader("alice123\n")), Out: &bytes.Buffer{}}
	_, _, err = p.Credentials()
	assert.Error(t, err)
}
