package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// scripted conversation used by the simulate command. Mixes clusterable
// problem reports with channel chatter that should be dropped as irrelevant.
var simulatedMessages = []struct {
	channel, user, text string
}{
	{"C-SUPPORT", "U-alice", "The login page is broken, I keep getting a 500 error"},
	{"C-SUPPORT", "U-bob", "Anyone up for lunch?"},
	{"C-SUPPORT", "U-carol", "I also can't log in, same error on the login page"},
	{"C-SUPPORT", "U-dave", "Would love a dark mode option in the app"},
	{"C-SUPPORT", "U-erin", "How do I export my data to CSV?"},
	{"C-SUPPORT", "U-frank", "Login still broken for my whole team this morning"},
	{"C-SUPPORT", "U-grace", "The weather is great today"},
	{"C-SUPPORT", "U-heidi", "App crashes immediately after the splash screen"},
	{"C-SUPPORT", "U-ivan", "Dark mode please! My eyes hurt at night"},
	{"C-SUPPORT", "U-judy", "Crash on startup here too, started after the update"},
}

func init() {
	var burst bool
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Post a scripted burst of Slack-shaped events to the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			base := time.Now().Unix()

			post := func(i int) error {
				m := simulatedMessages[i]
				payload := map[string]interface{}{
					"type": "event_callback",
					"event": map[string]string{
						"type":    "message",
						"channel": m.channel,
						"user":    m.user,
						"text":    m.text,
						"ts":      fmt.Sprintf("%d.%06d", base, i),
					},
				}
				resp, err := client.R().SetBody(payload).Post("/slack/events")
				if err != nil {
					return err
				}
				if err := checkAPIError(resp); err != nil {
					return fmt.Errorf("message %d: %w", i, err)
				}
				fmt.Fprintf(os.Stdout, "sent %-8s %s\n", m.user, m.text)
				return nil
			}

			if burst {
				// All messages in flight at once exercises the matcher's
				// concurrent clustering.
				var g errgroup.Group
				for i := range simulatedMessages {
					g.Go(func() error { return post(i) })
				}
				return g.Wait()
			}

			for i := range simulatedMessages {
				if err := post(i); err != nil {
					return err
				}
				time.Sleep(200 * time.Millisecond)
			}
			return nil
		},
	}
	simulateCmd.Flags().BoolVarP(&burst, "burst", "b", false, "Send all messages concurrently")
	rootCmd.AddCommand(simulateCmd)
}
