package control

import (
	"testing"

	"github.com/eiannone/keyboard"
)

func TestCommandForKey(t *testing.T) {
	tests := []struct {
		name string
		char rune
		key  keyboard.Key
		want keyCommand
	}{
		{"space key", 0, keyboard.KeySpace, keyTrigger},
		{"space rune", ' ', 0, keyTrigger},
		{"enter", 0, keyboard.KeyEnter, keyTrigger},
		{"q", 'q', 0, keyQuit},
		{"Q", 'Q', 0, keyQuit},
		{"esc", 0, keyboard.KeyEsc, keyQuit},
		{"ctrl-c", 0, keyboard.KeyCtrlC, keyQuit},
		{"other letter", 'a', 0, keyIgnore},
		{"arrow", 0, keyboard.KeyArrowUp, keyIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandForKey(tt.char, tt.key); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
