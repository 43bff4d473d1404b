// Package main provides the notionstamp status line.
// It prints one line describing the relay session, for terminals and panel displays.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thebtf/notionstamp/internal/notion"
	"github.com/thebtf/notionstamp/pkg/control"
	"github.com/thebtf/notionstamp/pkg/models"
)

// statusline must stay fast enough for prompt redraws.
const fetchTimeout = 150 * time.Millisecond

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorRed    = "\033[31m"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	client := control.NewClient(control.ServerAddr(), fetchTimeout)
	snap, err := client.Status(ctx)
	if err != nil {
		snap = nil
	}

	fmt.Println(formatStatusLine(snap, time.Now(), useColors(), os.Getenv("NOTIONSTAMP_STATUSLINE_FORMAT")))
}

// useColors is on unless NO_COLOR is set or TERM is dumb; NOTIONSTAMP_STATUSLINE_COLORS forces it.
func useColors() bool {
	enabled := os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
	switch os.Getenv("NOTIONSTAMP_STATUSLINE_COLORS") {
	case "false":
		enabled = false
	case "true":
		enabled = true
	}
	return enabled
}

type palette struct{ on bool }

func (p palette) paint(color, s string) string {
	if !p.on {
		return s
	}
	return color + s + colorReset
}

// formatStatusLine renders snap; a nil snap means the daemon is offline.
func formatStatusLine(snap *models.Snapshot, now time.Time, colors bool, format string) string {
	p := palette{on: colors}
	prefix := p.paint(colorCyan, "[notion]")

	if snap == nil {
		return prefix + " " + p.paint(colorGray, "○") + " offline"
	}

	switch snap.Status.Level {
	case models.StatusBadConfig:
		return prefix + " " + p.paint(colorYellow, "◐") + " not configured"
	case models.StatusConnecting:
		return prefix + " " + p.paint(colorYellow, "◐") + " starting"
	}

	var parts []string
	if snap.Session.Active {
		elapsed := "--:--:--"
		if snap.Session.StartTime != 0 {
			elapsed = notion.FormatElapsed(now.UnixMilli(), snap.Session.StartTime, notion.StyleFull)
		}
		switch format {
		case "minimal":
			parts = append(parts, p.paint(colorRed, "●"), elapsed)
		default:
			parts = append(parts, p.paint(colorRed, "● REC"), elapsed, "db:"+shortID(snap.Session.DatabaseID))
		}
	} else {
		parts = append(parts, p.paint(colorGreen, "●"), "idle")
	}

	if !snap.Status.Healthy() {
		detail := snap.Status.Code
		if snap.Status.HTTPStatus != 0 {
			detail = fmt.Sprintf("%s/%d", detail, snap.Status.HTTPStatus)
		}
		parts = append(parts, p.paint(colorRed, "✖ "+strings.TrimPrefix(detail, "/")))
	}

	if format == "minimal" {
		return strings.Join(parts, " ")
	}
	return prefix + " " + strings.Join(parts, " ")
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
