package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"  _          _       _____ ", "#22d3ee"},
	{" | |___ __ _(_)_ __ |__ / ", "#38bdf8"},
	{" |  _\\ V  V / | '  \\ |_ \\ ", "#60a5fa"},
	{"  \\__|\\_/\\_/|_|_||_|___/ ", "#818cf8"},
}

// PrintBanner writes the twin3 ASCII art banner and version to w.
// Colors are dropped when w is not a color-capable terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)

	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, out.String(line.text).Foreground(out.Color(line.color)))
	}
	tagline := out.String(fmt.Sprintf("  your digital twin guide  %s", strings.TrimSpace(version))).Faint()
	fmt.Fprintln(w, tagline)
	fmt.Fprintln(w)
}
