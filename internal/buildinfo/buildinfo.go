// Package buildinfo reports version data stamped in at link time with
// -ldflags "-X github.com/dmitrijs2005/ballotkeeper/internal/buildinfo.Version=...".
package buildinfo

import (
	"fmt"
	"io"
)

var (
	Version = "N/A"
	Date    = "N/A"
	Commit  = "N/A"
)

func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", Version)
	fmt.Fprintf(w, "Build date: %s\n", Date)
	fmt.Fprintf(w, "Build commit: %s\n", Commit)
}

// String is the one-line form used by the CLI --version flag.
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}
