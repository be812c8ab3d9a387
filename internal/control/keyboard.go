package control

import (
	"context"
	"errors"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/session"
)

type keyCommand int

const (
	keyIgnore keyCommand = iota
	keyTrigger
	keyQuit
)

// commandForKey maps a key press to a command. Space or Enter triggers;
// q, Esc and Ctrl-C quit.
func commandForKey(char rune, key keyboard.Key) keyCommand {
	switch key {
	case keyboard.KeySpace, keyboard.KeyEnter:
		return keyTrigger
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return keyQuit
	}
	switch char {
	case ' ':
		return keyTrigger
	case 'q', 'Q':
		return keyQuit
	}
	return keyIgnore
}

// RunKeyboard reads the terminal in raw mode and turns key presses into
// triggers until the user quits or ctx is done. quit is called once when
// the user asks to exit.
func RunKeyboard(ctx context.Context, s Session, quit func(), logger zerolog.Logger) error {
	if err := keyboard.Open(); err != nil {
		return err
	}
	defer keyboard.Close()

	logger.Info().Msg("Press space to talk, space again to send, q to quit")

	type keyPress struct {
		char rune
		key  keyboard.Key
		err  error
	}
	presses := make(chan keyPress)
	go func() {
		for {
			char, key, err := keyboard.GetKey()
			select {
			case presses <- keyPress{char, key, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-presses:
			if p.err != nil {
				return p.err
			}
			switch commandForKey(p.char, p.key) {
			case keyQuit:
				quit()
				return nil
			case keyTrigger:
				action, err := s.Trigger(ctx)
				switch {
				case errors.Is(err, session.ErrBusy):
					logger.Info().Msg("Still thinking, please wait")
				case err != nil:
					logger.Warn().Err(err).Str("action", string(action)).Msg("Trigger failed")
				default:
					logger.Debug().Str("action", string(action)).Msg("Trigger applied")
				}
			}
		}
	}
}
