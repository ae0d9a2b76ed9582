package cmd

import (
	"fmt"
	"io"

	"github.com/koscakluka/ema-panel/core/audio/miniaudio"
	"github.com/spf13/cobra"
)

func newTestAudioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-audio",
		Short: "List the audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			playback, capture, err := miniaudio.ListDevices()
			if err != nil {
				return fmt.Errorf("list audio devices: %w", err)
			}

			out := cmd.OutOrStdout()
			printDevices(out, "Playback devices", playback)
			printDevices(out, "Capture devices", capture)
			return nil
		},
	}
}

func printDevices(out io.Writer, title string, devices []miniaudio.Device) {
	fmt.Fprintf(out, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(out, "  none")
		return
	}
	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " (default)"
		}
		fmt.Fprintf(out, "  %d: %s%s\n", i, device.Name, marker)
	}
}
