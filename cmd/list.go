package cmd

import (
	"fmt"
	"io"

	"visualizer/internal/audio"
	"visualizer/internal/tui"
)

// pickDevice is swapped out in tests.
var pickDevice = tui.PickDevice

// List prints the available devices, or with interactive set opens the device
// picker and prints the flags that select the chosen device. PortAudio must be
// initialized.
func List(w io.Writer, interactive bool) error {
	if !interactive {
		return audio.ListDevices(w)
	}

	sel, err := pickDevice()
	if err != nil {
		return fmt.Errorf("device picker: %w", err)
	}
	if !sel.Confirmed {
		fmt.Fprintln(w, "No device selected.")
		return nil
	}
	fmt.Fprintf(w, "Selected [%d] %s at %.0f Hz\n", sel.DeviceID, sel.Name, sel.SampleRate)
	fmt.Fprintf(w, "Run with: --device %d --sample-rate %.0f\n", sel.DeviceID, sel.SampleRate)
	return nil
}
