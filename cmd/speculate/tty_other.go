//go:build !linux

package main

import "os"

func stderrIsTerminal() bool { return isCharDevice(os.Stderr) }

func stdoutIsTerminal() bool { return isCharDevice(os.Stdout) }

func isCharDevice(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
