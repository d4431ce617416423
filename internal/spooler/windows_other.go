//go:build !windows

package spooler

import "errors"

func newWindows() (Spooler, error) {
	return nil, errors.New("windows spooler backend is only available on windows")
}
