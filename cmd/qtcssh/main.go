// Command qtcssh is a minimal CLI exercising the qtcssh façade: exec,
// put/get over SFTP, and local TCP forwarding over a direct-tcpip tunnel.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qt-creator/qtc-ssh/sshcrypto"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qtcssh:", err)
		os.Exit(1)
	}
}

var (
	flagHost         string
	flagPort         uint16
	flagUser         string
	flagPassword     string
	flagIdentity     string
	flagHostKeyCheck = hostKeyCheckFlag{mode: sshcrypto.HostKeyCheckAllowNoMatch}
)

// hostKeyCheckFlag adapts sshcrypto.HostKeyCheckMode to pflag.Value so it
// can be set by name on the command line instead of by its numeric value.
type hostKeyCheckFlag struct {
	mode sshcrypto.HostKeyCheckMode
}

func (f *hostKeyCheckFlag) String() string {
	switch f.mode {
	case sshcrypto.HostKeyCheckNone:
		return "none"
	case sshcrypto.HostKeyCheckAllowMismatch:
		return "allow-mismatch"
	case sshcrypto.HostKeyCheckStrict:
		return "strict"
	default:
		return "allow-no-match"
	}
}

func (f *hostKeyCheckFlag) Set(s string) error {
	switch s {
	case "none":
		f.mode = sshcrypto.HostKeyCheckNone
	case "allow-no-match":
		f.mode = sshcrypto.HostKeyCheckAllowNoMatch
	case "allow-mismatch":
		f.mode = sshcrypto.HostKeyCheckAllowMismatch
	case "strict":
		f.mode = sshcrypto.HostKeyCheckStrict
	default:
		return fmt.Errorf("unknown host-key-check mode %q (want none, allow-no-match, allow-mismatch, or strict)", s)
	}
	return nil
}

func (f *hostKeyCheckFlag) Type() string { return "mode" }

var _ pflag.Value = (*hostKeyCheckFlag)(nil)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qtcssh",
		Short:         "SSH-2 / SFTP client demo",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&flagHost, "host", "", "remote host (required)")
	cmd.PersistentFlags().Uint16Var(&flagPort, "port", 22, "remote port")
	cmd.PersistentFlags().StringVar(&flagUser, "user", "", "remote user (required)")
	cmd.PersistentFlags().StringVar(&flagPassword, "password", "", "password; prompted if omitted and --identity is not set")
	cmd.PersistentFlags().StringVarP(&flagIdentity, "identity", "i", "", "private key file for publickey auth")
	cmd.PersistentFlags().Var(&flagHostKeyCheck, "host-key-check", "host key verification threshold: none, allow-no-match, allow-mismatch, or strict")
	_ = cmd.MarkPersistentFlagRequired("host")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(newExecCmd(), newPutCmd(), newGetCmd(), newTunnelCmd())
	return cmd
}
