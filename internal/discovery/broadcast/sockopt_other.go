//go:build !unix && !windows

package broadcast

import "syscall"

func control(_, _ string, _ syscall.RawConn) error {
	return nil
}
