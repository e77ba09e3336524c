//go:build linux

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// stderrIsTerminal probes stderr with TCGETS; only a terminal answers.
func stderrIsTerminal() bool {
	_, err := unix.IoctlGetTermios(int(os.Stderr.Fd()), unix.TCGETS)
	return err == nil
}

func stdoutIsTerminal() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}
