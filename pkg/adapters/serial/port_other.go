//go:build !linux

package serial

import (
	"fmt"
	"io"
	"runtime"
)

func open(Config) (io.ReadWriteCloser, error) {
	return nil, fmt.Errorf("serial: unsupported platform %s", runtime.GOOS)
}
