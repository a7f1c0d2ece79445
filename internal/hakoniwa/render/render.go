// Package render formats container listings for operators: a styled table
// for humans, a stable JSON document for machines, and the interactive
// confirmation prompt used by destructive bulk operations.
package render

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/lifecycle"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD700"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	sessionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))

	driftStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

// listDocument is the machine-readable envelope for `list --json`.
type listDocument struct {
	Containers []lifecycle.ContainerInfo `json:"containers"`
}

// JSON writes the listing as a JSON object with a "containers" array.
func JSON(w io.Writer, infos []lifecycle.ContainerInfo) error {
	if infos == nil {
		infos = []lifecycle.ContainerInfo{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listDocument{Containers: infos})
}

// Table writes a human-readable listing.
func Table(w io.Writer, infos []lifecycle.ContainerInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No sandbox containers registered.")
		return
	}

	nameWidth, sessionWidth, imageWidth := len("CONTAINER"), len("SESSION"), len("IMAGE")
	for _, info := range infos {
		nameWidth = max(nameWidth, len(info.Name))
		sessionWidth = max(sessionWidth, len(info.SessionKey))
		imageWidth = max(imageWidth, len(info.Image))
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s  %-*s  %-*s  %-8s  %-6s  %s",
		nameWidth, "CONTAINER", sessionWidth, "SESSION", imageWidth, "IMAGE",
		"STATUS", "IMAGE?", "LAST USED")))

	for _, info := range infos {
		status := statusStopped.Render("stopped")
		if info.Running {
			status = statusRunning.Render("running")
		}
		match := "ok"
		if !info.ImageMatch {
			match = driftStyle.Render("drift")
		}
		fmt.Fprintf(w, "%s  %s  %-*s  %-8s  %-6s  %s\n",
			nameStyle.Render(fmt.Sprintf("%-*s", nameWidth, info.Name)),
			sessionStyle.Render(fmt.Sprintf("%-*s", sessionWidth, info.SessionKey)),
			imageWidth, info.Image,
			status,
			match,
			humanTime(info.LastUsedAtMs),
		)
	}
}

// Preview writes the recreate preview for the selected containers.
func Preview(w io.Writer, infos []lifecycle.ContainerInfo) {
	fmt.Fprintf(w, "The following %d container(s) will be removed:\n\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(w, "  %s  (%s, %s)\n",
			nameStyle.Render(info.Name), info.SessionKey, info.Image)
	}
	fmt.Fprintln(w)
}

// Confirm prompts on out and reads a yes/no answer from in. Anything but an
// explicit "y"/"yes" declines, including a closed input stream.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// humanTime renders an epoch-milliseconds timestamp for the table.
func humanTime(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
