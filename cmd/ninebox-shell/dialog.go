package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/notify"
	"github.com/ninebox-hr/ninebox-shell/internal/supervisor"
)

const (
	optionRetry = "Retry"
	optionLogs  = "View logs"
	optionExit  = "Exit"

	dialogTailLines = 40
)

type chooser interface {
	Choose(ctx context.Context, message string, options []string, def int) (int, error)
}

type logTailer interface {
	Tail(n int) ([]string, error)
}

// consoleDialog asks the user on the terminal and mirrors each question as a
// desktop notification. Without a terminal every question resolves to Exit.
type consoleDialog struct {
	chooser     chooser
	interactive bool
	out         io.Writer
	logs        logTailer
	notifier    notify.Notifier
	logger      *zap.SugaredLogger
}

func (d *consoleDialog) ShowStartupFailure(ctx context.Context, f supervisor.StartupFailure) supervisor.Choice {
	title := "9-box could not start"
	d.notify(title, f.Info.UserMessage)
	if f.Err != nil {
		d.logger.Infow("Asking user about startup failure", "kind", f.Info.Kind, "error", f.Err)
	}

	options := make([]string, 0, 3)
	if f.Info.CanRetry {
		options = append(options, optionRetry)
	}
	if f.LogPath != "" {
		options = append(options, optionLogs)
	}
	options = append(options, optionExit)

	return d.ask(ctx, fmt.Sprintf("%s: %s", title, f.Info.UserMessage), options)
}

func (d *consoleDialog) ShowRestartExhausted(ctx context.Context, e supervisor.RestartExhausted) supervisor.Choice {
	title := "9-box lost its backend"
	message := fmt.Sprintf("%s (gave up after %d restart attempts)", e.Info.UserMessage, e.Attempts)
	d.notify(title, message)

	options := []string{optionRetry}
	if e.LogPath != "" {
		options = append(options, optionLogs)
	}
	options = append(options, optionExit)

	return d.ask(ctx, fmt.Sprintf("%s: %s", title, message), options)
}

func (d *consoleDialog) ask(ctx context.Context, message string, options []string) supervisor.Choice {
	if !d.interactive {
		d.logger.Warnw("No terminal attached, treating dialog as exit", "message", message)
		return supervisor.ChoiceExit
	}

	def := len(options) - 1
	if options[0] == optionRetry {
		def = 0
	}

	for {
		idx, err := d.chooser.Choose(ctx, message, options, def)
		if err != nil {
			d.logger.Infow("Dialog closed without an answer", "error", err)
			return supervisor.ChoiceExit
		}

		switch options[idx] {
		case optionRetry:
			return supervisor.ChoiceRetry
		case optionLogs:
			d.showLogs()
		default:
			return supervisor.ChoiceExit
		}
	}
}

func (d *consoleDialog) showLogs() {
	if d.logs == nil {
		fmt.Fprintln(d.out, "Backend log is not available")
		return
	}
	lines, err := d.logs.Tail(dialogTailLines)
	if err != nil {
		fmt.Fprintf(d.out, "Failed to read backend log: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "--- last %d lines of backend output ---\n", len(lines))
	for _, line := range lines {
		fmt.Fprintln(d.out, line)
	}
	fmt.Fprintln(d.out, "---")
}

func (d *consoleDialog) notify(title, message string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(title, message); err != nil {
		d.logger.Debugw("Desktop notification failed", "error", err)
	}
}
