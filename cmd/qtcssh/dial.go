package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/qt-creator/qtc-ssh/qtcssh"
	"github.com/qt-creator/qtc-ssh/sshcrypto"
)

// termPasswordRetriever implements sshcrypto.PasswordRetriever and the
// password-auth secret prompt by reading from the controlling terminal
// with echo disabled, matching restic's secret-entry pattern.
type termPasswordRetriever struct {
	prompt string
}

func (r termPasswordRetriever) GetPassword() (string, bool) {
	fmt.Fprint(os.Stderr, r.prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false
	}
	return string(pw), true
}

// dialFromFlags builds a qtcssh.Config from the persistent flags and
// dials it, prompting for whichever secret the chosen auth method needs.
func dialFromFlags() (*qtcssh.Connection, error) {
	var opt qtcssh.Option
	switch {
	case flagIdentity != "":
		retriever := termPasswordRetriever{prompt: fmt.Sprintf("Passphrase for %s (empty if none): ", flagIdentity)}
		opt = qtcssh.WithPrivateKeyFile(flagIdentity, retriever)

	default:
		pw := flagPassword
		if pw == "" {
			retriever := termPasswordRetriever{prompt: fmt.Sprintf("%s@%s's password: ", flagUser, flagHost)}
			got, ok := retriever.GetPassword()
			if !ok {
				return nil, fmt.Errorf("failed to read password")
			}
			pw = got
		}
		opt = qtcssh.WithPassword(pw)
	}

	hostKeyOpt := qtcssh.WithHostKeyDatabase(sshcrypto.NewMemoryHostKeyDatabase(), flagHostKeyCheck.mode)
	cfg := qtcssh.DefaultConfig(flagHost, flagPort, flagUser, opt, hostKeyOpt)
	return qtcssh.Dial(cfg)
}
