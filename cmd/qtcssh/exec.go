package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qt-creator/qtc-ssh/sshprocess"
)

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <command>",
		Short: "run a command on the remote host and stream its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dialFromFlags()
			if err != nil {
				return err
			}
			defer conn.Close()

			proc, err := conn.Exec(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("exec: %w", err)
			}

			done := make(chan struct{})
			var exitCode int
			var runErr error

			proc.OnReadyReadStandardOutput = func(data []byte) { os.Stdout.Write(data) }
			proc.OnReadyReadStandardError = func(data []byte) { os.Stderr.Write(data) }
			proc.OnDone = func(status sshprocess.ExitStatus, code int, signal string, err error) {
				exitCode = code
				runErr = err
				if status == sshprocess.KilledBySignal {
					runErr = fmt.Errorf("remote process killed by signal %s", signal)
				}
				close(done)
			}

			<-done
			if runErr != nil {
				return runErr
			}
			if exitCode != 0 {
				return fmt.Errorf("remote command exited with status %d", exitCode)
			}
			return nil
		},
	}
}
