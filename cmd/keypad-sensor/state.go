package main

import (
	"fmt"
	"io"

	"github.com/sweeney/keypad-sensor/internal/gpio"
	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// printState requests every bound line and prints its raw level. No
// debouncing is applied.
func printState(w io.Writer, src gpio.Source, bindings []keypad.Binding, bias gpio.Bias, activeHigh bool) error {
	for _, b := range bindings {
		if err := src.Watch(b.Line, bias, func() {}); err != nil {
			return fmt.Errorf("watch %s: %w", b.Key, err)
		}
	}
	for _, b := range bindings {
		high, err := src.Level(b.Line)
		if err != nil {
			return fmt.Errorf("read %s: %w", b.Key, err)
		}
		fmt.Fprintf(w, "%-6s line %-3d %-4s %s\n", b.Key, b.Line, levelString(high), pressedString(high == activeHigh))
	}
	return nil
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}

func pressedString(pressed bool) string {
	if pressed {
		return "pressed"
	}
	return "released"
}
