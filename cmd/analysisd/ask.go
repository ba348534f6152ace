package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"analysisd/internal/client"
	"analysisd/internal/ui"
	"analysisd/pkg/types"
)

func newAskCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Send text to a running server and print the streamed answer",
		Example: "  analysisd ask \"What time is my appointment?\"\n" +
			"  analysisd ask --server http://10.0.0.5:8080 \"Summarize today's notes\"",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			c := client.New(server, nil)
			out := cmd.OutOrStdout()
			r := ui.NewRenderer(out)

			sp := ui.NewSpinner("Analyzing...")
			sp.Start()
			first := true
			n, err := c.Analyze(cmd.Context(), prompt, func(p types.Notification) {
				if first {
					sp.Stop()
					first = false
				}
				r.Partial(p)
			})
			sp.Stop()
			if err != nil {
				if client.IsBusy(err) {
					sp.Fail("server busy, try again shortly")
				}
				return err
			}
			r.Terminal(n)
			if n.Kind == types.KindError {
				return fmt.Errorf("analysis failed: %s", n.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", envOr("ANALYSISD_SERVER", "http://127.0.0.1"+envOr("ANALYSISD_ADDR", ":8080")), "Server base URL")
	return cmd
}
