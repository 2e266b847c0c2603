package cli

import (
	"time"

	"github.com/fatih/color"
)

var (
	allowColor    = color.New(color.FgGreen, color.Bold)
	blockColor    = color.New(color.FgRed, color.Bold)
	escalateColor = color.New(color.FgYellow, color.Bold)
	dimColor      = color.New(color.Faint)
)

func verdictLabel(verdict string) string {
	switch verdict {
	case "ALLOW":
		return allowColor.Sprint("ALLOW")
	case "BLOCK":
		return blockColor.Sprint("BLOCK")
	case "ESCALATE":
		return escalateColor.Sprint("ESCALATE")
	case "":
		return blockColor.Sprint("ERROR")
	default:
		return verdict
	}
}

func verdictIcon(verdict string) string {
	switch verdict {
	case "BLOCK":
		return "\xf0\x9f\x9b\x91" // stop sign
	case "ESCALATE":
		return "\xe2\x9a\xa0\xef\xb8\x8f" // warning
	case "ALLOW":
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
