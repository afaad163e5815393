package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// ConsoleSink writes notifications to the terminal with color.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a new console sink writing to color.Output.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: color.Output}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() types.NotifyType { return types.NotifyConsole }

// Send writes a notification line with color-coded severity.
func (s *ConsoleSink) Send(_ context.Context, n types.Notification) error {
	var prefix string
	switch n.Level {
	case types.NotifyLevelError:
		prefix = color.RedString("[ERROR]")
	case types.NotifyLevelWarning:
		prefix = color.YellowString("[WARN]")
	default:
		prefix = color.CyanString("[INFO]")
	}

	subject := n.Symbol
	if n.Model != "" {
		subject += "/" + string(n.Model)
	}
	_, err := fmt.Fprintf(s.out, "%s %s [%s] %s\n", prefix, n.Kind, subject, n.Message)
	return err
}
