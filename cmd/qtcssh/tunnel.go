package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/qt-creator/qtc-ssh/tunnel"
)

func newTunnelCmd() *cobra.Command {
	var localAddr string
	var remoteHost string
	var remotePort uint16

	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: "forward local TCP connections to a remote host:port over the SSH connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dialFromFlags()
			if err != nil {
				return err
			}
			defer conn.Close()

			ln, err := net.Listen("tcp", localAddr)
			if err != nil {
				return err
			}
			defer ln.Close()
			fmt.Fprintf(os.Stderr, "forwarding %s -> %s:%d\n", ln.Addr(), remoteHost, remotePort)

			for {
				nc, err := ln.Accept()
				if err != nil {
					return err
				}

				originatorHost, originatorPort := splitHostPortOr(nc.RemoteAddr().String())

				tun, err := conn.OpenTunnel(remoteHost, uint32(remotePort), originatorHost, originatorPort)
				if err != nil {
					fmt.Fprintln(os.Stderr, "tunnel: open:", err)
					nc.Close()
					continue
				}
				go bridge(tun, nc)
			}
		},
	}

	cmd.Flags().StringVar(&localAddr, "local", "127.0.0.1:0", "local address to listen on")
	cmd.Flags().StringVar(&remoteHost, "remote-host", "", "destination host reachable from the remote side (required)")
	cmd.Flags().Uint16Var(&remotePort, "remote-port", 0, "destination port (required)")
	_ = cmd.MarkFlagRequired("remote-host")
	_ = cmd.MarkFlagRequired("remote-port")

	return cmd
}

func splitHostPortOr(addr string) (string, uint32) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, uint32(port)
}

// bridge pumps bytes between a forwarded direct-tcpip tunnel and the
// local TCP connection that originated it until either side closes.
func bridge(tun *tunnel.Tunnel, nc net.Conn) {
	done := make(chan struct{})
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = tun.Close()
			_ = nc.Close()
			close(done)
		})
	}

	tun.OnReadyRead = func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := tun.Read(buf)
			if n > 0 {
				if werr := writeFull(nc, buf[:n]); werr != nil {
					closeBoth()
					return
				}
			}
			if err != nil || n == 0 {
				return
			}
		}
	}
	tun.OnClosed = closeBoth
	tun.OnError = func(error) { closeBoth() }

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := nc.Read(buf)
			if n > 0 {
				if werr := writeFull(tun, buf[:n]); werr != nil {
					closeBoth()
					return
				}
			}
			if err != nil {
				closeBoth()
				return
			}
		}
	}()

	<-done
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
