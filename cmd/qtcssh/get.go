package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote> <local>",
		Short: "download a remote file over SFTP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath, localPath := args[0], args[1]

			conn, err := dialFromFlags()
			if err != nil {
				return err
			}
			defer conn.Close()

			cl, err := conn.NewSFTPClient()
			if err != nil {
				return fmt.Errorf("sftp: %w", err)
			}
			defer cl.Close()

			remote, err := cl.Open(remotePath)
			if err != nil {
				return fmt.Errorf("open %q: %w", remotePath, err)
			}
			defer remote.Close()

			local, err := os.Create(localPath)
			if err != nil {
				return err
			}
			defer local.Close()

			n, err := remote.CopyTo(local)
			if err != nil {
				return fmt.Errorf("download: %w", err)
			}
			fmt.Fprintf(os.Stderr, "downloaded %d bytes to %s\n", n, localPath)
			return nil
		},
	}
}
