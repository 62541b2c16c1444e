package tom

import (
	"fmt"
	"io"
	"os"
)

// BellNotifier rings the terminal bell when a message lands. Keystrokes
// stay silent; a bell per typed character would be unbearable.
type BellNotifier struct {
	Out io.Writer
}

func (n BellNotifier) Keystroke() {}

func (n BellNotifier) MessageDelivered() {
	out := n.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprint(out, "\a")
}
