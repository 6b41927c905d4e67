package bts

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBTS starts a Unix listener that replies to every line it receives
// with reply, then closes the connection.
func fakeBTS(t *testing.T, reply string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "command.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				if scanner.Scan() {
					conn.Write([]byte(reply))
				}
			}()
		}
	}()
	return path
}

func TestCommandSocket_Run_Success(t *testing.T) {
	path := fakeBTS(t, "OK\n")
	sock := NewCommandSocket(path)

	out, err := sock.Run("txatten 40")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
}

func TestCommandSocket_Run_DetectsFailurePhrase(t *testing.T) {
	path := fakeBTS(t, "Error: command not found\n")
	sock := NewCommandSocket(path)

	_, err := sock.Run("bogus")
	assert.Error(t, err)
}

func TestCommandSocket_Run_DialFailure(t *testing.T) {
	sock := NewCommandSocket(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := sock.Run("restart")
	assert.Error(t, err)
}
