package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/config"
	"github.com/go-go-golems/chatsync/pkg/events"
	"github.com/go-go-golems/chatsync/pkg/logging"
	"github.com/go-go-golems/chatsync/pkg/ui"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join a conversation: show new messages as they arrive and send what you type",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	config.AddFlags(cmd)
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	s, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	if s.User == "" {
		return errors.New("--user is required")
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
	if interactive && !cmd.Flags().Changed("log-file") {
		// keep log lines off the alternate screen
		ls := logging.SettingsFromCobra(cmd)
		ls.File = filepath.Join(os.TempDir(), "chatsync.log")
		if c, err := logging.Init(ls); err == nil {
			if logCloser != nil {
				_ = logCloser.Close()
			}
			logCloser = c
		}
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// ctx also ends when the UI quits, which releases handlers still holding an event
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	sess, err := newSession(s)
	if err != nil {
		return err
	}
	defer sess.close()

	sub, err := sess.bus.Subscriber(ctx, s.Conversation)
	if err != nil {
		return err
	}
	f := ui.Formatter{Markdown: s.Markdown, Color: interactive}

	var (
		evCh    chan events.Event
		handler func(events.Event, events.Cursor)
	)
	if interactive {
		evCh = make(chan events.Event, 256)
		handler = forwardEvents(ctx, evCh)
	} else {
		printer := ui.NewLinePrinter(os.Stdout, f)
		handler = func(ev events.Event, _ events.Cursor) {
			switch ev.Type {
			case events.EventRender:
				printer.Render(ev.User, ev.Body)
			case events.EventNotice:
				printer.Notice(ev.Category, ev.Detail)
			}
		}
	}

	coord := events.NewCoordinator(s.Conversation, sub, handler)
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Close()

	if err := sess.engine.Start(ctx); err != nil {
		return err
	}
	defer sess.engine.Stop()
	log.Info().Str("component", "cli").Str("conv_id", s.Conversation).Str("user", s.User).Bool("interactive", interactive).Msg("session started")

	if interactive {
		p := tea.NewProgram(
			ui.NewModel(sess.engine, s.User, s.Conversation, evCh, f),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)
		_, err := p.Run()
		cancel()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return errors.Wrap(err, "run ui")
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := ui.RunLines(egCtx, os.Stdin, func(ctx context.Context, body string) error {
			return sess.engine.Send(ctx, s.User, body)
		})
		if err != nil {
			sess.engine.Stop()
		}
		return err
	})
	eg.Go(func() error {
		sess.engine.Wait()
		return nil
	})
	return eg.Wait()
}

// forwardEvents hands events to the UI channel. Once ctx is done pending events are
// dropped so publishers waiting on the ack are released.
func forwardEvents(ctx context.Context, evCh chan<- events.Event) func(events.Event, events.Cursor) {
	return func(ev events.Event, _ events.Cursor) {
		select {
		case evCh <- ev:
		case <-ctx.Done():
		}
	}
}
