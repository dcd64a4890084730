package cli

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/nguyengg/sqz/passlock"
	"golang.org/x/term"
)

type Protect struct {
	Salt     string `long:"salt" description:"salt for key derivation; a random salt is generated when empty"`
	Storable string `short:"s" long:"storable" description:"verify an existing storable string instead of creating one"`
}

func (c *Protect) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	if c.Storable != "" {
		p, err := passlock.FromStorable(c.Storable)
		if err != nil {
			return err
		}

		passphrase, err := p.Decrypt()
		if err != nil {
			return fmt.Errorf("recover passphrase error: %w", err)
		}

		log.Printf("storable verified: recovered a %d-character passphrase (%s)", len(passphrase), p.InputEncoding())
		return nil
	}

	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}

	if confirm, err := readPassphrase("Confirm passphrase: "); err != nil {
		return err
	} else if passphrase != confirm {
		return errors.New("passphrases do not match")
	}

	salt := c.Salt
	if salt == "" {
		b := make([]byte, 16)
		if _, err = rand.Read(b); err != nil {
			return fmt.Errorf("generate salt error: %w", err)
		}

		salt = hex.EncodeToString(b)
	}

	p, err := passlock.Encrypt(passphrase, salt)
	if err != nil {
		return err
	}

	// the storable goes to stdout so it can be piped or redirected.
	fmt.Println(p.Storable())
	return nil
}

// readPassphrase prompts on stderr and reads without echo when stdin is a terminal, or reads one line otherwise.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		s, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}

		return strings.TrimRight(s, "\r\n"), nil
	}

	_, _ = fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
