package render

import (
	"github.com/charmbracelet/x/ansi"

	"github.com/CodeDestroyer19/universeK/internal/klogparse"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

var levelStyles = map[kfmt.Level]ansi.Style{
	kfmt.LevelError: ansi.Style{}.Bold().ForegroundColor(ansi.Red),
	kfmt.LevelWarn:  ansi.Style{}.ForegroundColor(ansi.Yellow),
	kfmt.LevelDebug: ansi.Style{}.ForegroundColor(ansi.BrightBlack),
	kfmt.LevelTrace: ansi.Style{}.Faint().ForegroundColor(ansi.BrightBlack),
}

var moduleStyle = ansi.Style{}.ForegroundColor(ansi.Cyan)

// LogLine returns e formatted for a colour terminal. Untagged lines and info
// messages keep the default colour; the module tag is always highlighted.
func LogLine(e klogparse.Entry) string {
	if !e.Tagged {
		return e.Raw
	}

	tag := "[" + e.Level.String() + "]"
	if style, ok := levelStyles[e.Level]; ok {
		return style.Styled(tag) + moduleStyle.Styled("["+e.Module+"]") + " " + style.Styled(e.Message)
	}
	return tag + moduleStyle.Styled("["+e.Module+"]") + " " + e.Message
}
