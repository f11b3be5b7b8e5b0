package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local> <remote>",
		Short: "upload a local file over SFTP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			localPath, remotePath := args[0], args[1]

			conn, err := dialFromFlags()
			if err != nil {
				return err
			}
			defer conn.Close()

			local, err := os.Open(localPath)
			if err != nil {
				return err
			}
			defer local.Close()

			cl, err := conn.NewSFTPClient()
			if err != nil {
				return fmt.Errorf("sftp: %w", err)
			}
			defer cl.Close()

			remote, err := cl.Create(remotePath)
			if err != nil {
				return fmt.Errorf("create %q: %w", remotePath, err)
			}
			defer remote.Close()

			n, err := remote.CopyFrom(local)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			fmt.Fprintf(os.Stderr, "uploaded %d bytes to %s\n", n, remotePath)
			return nil
		},
	}
}
