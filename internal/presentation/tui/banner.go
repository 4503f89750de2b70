package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`                   _`,
	`  _ __   __ _ _ __| | ___ _   _`,
	` | '_ \ / _' | '__| |/ _ \ | | |`,
	` | |_) | (_| | |  | |  __/ |_| |`,
	` | .__/ \__,_|_|  |_|\___|\__, |`,
	` |_|                      |___/`,
}

// Green to teal, one shade per line.
var bannerColors = []string{"#4ade80", "#34d399", "#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa"}

// PrintBanner writes the parley banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w, termenv.String(fmt.Sprintf("  v%s  type /quit to leave, /restart to start over", version)).Faint())
	fmt.Fprintln(w)
}
