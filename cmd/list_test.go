package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"visualizer/internal/tui"
)

func TestList_Interactive(t *testing.T) {
	orig := pickDevice
	defer func() { pickDevice = orig }()

	tests := []struct {
		name    string
		sel     tui.Selection
		err     error
		want    string
		wantErr bool
	}{
		{"confirmed", tui.Selection{DeviceID: 2, Name: "USB Mic", SampleRate: 48000, Confirmed: true}, nil,
			"Run with: --device 2 --sample-rate 48000", false},
		{"cancelled", tui.Selection{}, nil, "No device selected.", false},
		{"picker error", tui.Selection{}, errors.New("no tty"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pickDevice = func() (tui.Selection, error) { return tt.sel, tt.err }
			var out bytes.Buffer
			err := List(&out, true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("List() error = %v, wantErr %t", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}
