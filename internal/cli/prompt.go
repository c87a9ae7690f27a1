package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errNotTerminal is returned when a prompt is needed but stdin is not a TTY.
var errNotTerminal = errors.New("stdin is not a terminal")

// promptSecret reads a line from the terminal without echo.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNotTerminal
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// DownloadConflictAction represents user choice when the output file exists
type DownloadConflictAction int

const (
	DownloadSkipOnce DownloadConflictAction = iota
	DownloadSkipAll
	DownloadOverwriteOnce
	DownloadOverwriteAll
	DownloadAbort
)

// promptDownloadConflict asks what to do when localPath already exists.
func promptDownloadConflict(in io.Reader, out io.Writer, key, localPath string) (DownloadConflictAction, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "\nFile '%s' already exists at '%s'.\n", key, localPath)
		fmt.Fprintln(out, "What would you like to do?")
		fmt.Fprintln(out, "  1. Skip (once) - Skip this file only")
		fmt.Fprintln(out, "  2. Skip (do for all) - Skip all existing files")
		fmt.Fprintln(out, "  3. Overwrite (once) - Replace this file, prompt for next")
		fmt.Fprintln(out, "  4. Overwrite (do for all) - Replace all existing files")
		fmt.Fprintln(out, "  5. Abort - Stop downloading")
		fmt.Fprint(out, "Choose [1-5]: ")

		input, err := reader.ReadString('\n')
		if err != nil {
			return DownloadAbort, err
		}

		switch strings.TrimSpace(input) {
		case "1":
			return DownloadSkipOnce, nil
		case "2":
			return DownloadSkipAll, nil
		case "3":
			return DownloadOverwriteOnce, nil
		case "4":
			return DownloadOverwriteAll, nil
		case "5":
			return DownloadAbort, nil
		default:
			fmt.Fprintln(out, "Invalid choice, please try again.")
		}
	}
}
