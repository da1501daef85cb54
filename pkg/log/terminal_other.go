//go:build !linux && !darwin

package log

func isTerminal(fd int) bool {
	return false
}
