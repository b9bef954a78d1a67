package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dkeye/voxroom/internal/adapters/controlplane"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	historyRoom     string
	historyIdentity string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored messages of a room",
	Long: `Print the first stored chat messages of a room, oldest first.

Examples:
  voxroom history --room standup -i alice --password secret
  voxroom history --room standup -i alice --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cp := controlplane.New(viper.GetString("server"), viper.GetDuration("timeout"))
		if err := signIn(cmd.Context(), cp, historyIdentity, viper.GetString("password")); err != nil {
			return err
		}
		return printHistory(cmd.Context(), cp, domain.RoomID(historyRoom), historyLimit, cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyRoom, "room", "r", "", "room name")
	historyCmd.Flags().StringVarP(&historyIdentity, "identity", "i", "", "your account name")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of messages")
	_ = historyCmd.MarkFlagRequired("room")
	_ = historyCmd.MarkFlagRequired("identity")
}

func printHistory(ctx context.Context, h core.MessageHistory, room domain.RoomID, limit int, out io.Writer) error {
	msgs, err := h.History(ctx, room, limit)
	if err != nil {
		return fmt.Errorf("read history of %s: %w", room, err)
	}
	if len(msgs) == 0 {
		fmt.Fprintf(out, "no messages in %s\n", room)
		return nil
	}
	for _, m := range msgs {
		name := m.SenderName
		if name == "" {
			name = string(m.SenderIdentity)
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04:05"), name, m.Message)
	}
	return nil
}
