// Package iocli abstracts terminal input and output of the medpass CLI.
package iocli

//go:generate moq -out io_mock.go . IO

// IO is the terminal seen by CLI commands
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	// ReadPassword reads a secret without echo when input is a terminal
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
