package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dkeye/voxroom/internal/adapters/controlplane"
	"github.com/dkeye/voxroom/internal/adapters/rtc"
	"github.com/dkeye/voxroom/internal/adapters/wsclient"
	"github.com/dkeye/voxroom/internal/app/projector"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type joinOptions struct {
	room      string
	identity  string
	noAgent   bool
	noMedia   bool
	reconnect bool
	ice       []string
}

var joinOpts joinOptions

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and chat from the terminal",
	Long: `Join a room, ask the AI agent in, and chat.

Lines typed on stdin are sent as chat. Commands:
  /mute   toggle the microphone
  /who    list participants
  /quit   leave the room

Examples:
  voxroom join --room standup --identity alice --password secret
  VOX_PASSWORD=secret voxroom join -r standup -i bob --no-agent`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runJoin(ctx, joinOpts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	addJoinFlags(joinCmd.Flags(), &joinOpts)
	_ = joinCmd.MarkFlagRequired("room")
	_ = joinCmd.MarkFlagRequired("identity")
}

func addJoinFlags(fs *pflag.FlagSet, o *joinOptions) {
	fs.StringVarP(&o.room, "room", "r", "", "room name")
	fs.StringVarP(&o.identity, "identity", "i", "", "your account name, used as identity in the room")
	fs.BoolVar(&o.noAgent, "no-agent", false, "do not ask the AI agent to join")
	fs.BoolVar(&o.noMedia, "no-media", false, "skip the audio peer connection")
	fs.BoolVar(&o.reconnect, "reconnect", true, "reconnect after network failures")
	fs.StringSliceVar(&o.ice, "ice", nil, "ICE server URLs")
}

func runJoin(ctx context.Context, opts joinOptions, in io.Reader, out io.Writer) error {
	server := viper.GetString("server")
	cp := controlplane.New(server, viper.GetDuration("timeout"))
	wsURL, err := controlplane.SignalURL(server)
	if err != nil {
		return err
	}
	room := domain.RoomID(opts.room)
	if err := signIn(ctx, cp, opts.identity, viper.GetString("password")); err != nil {
		return err
	}

	if !opts.noAgent {
		if err := cp.JoinAgent(ctx, room); err != nil {
			log.Warn().Err(err).Str("module", "cmd.voxroom").Str("room", opts.room).Msg("agent did not join")
		}
	}

	transport := wsclient.NewProvider(wsclient.Config{
		Media: !opts.noMedia,
		RTC:   rtc.DefaultWebRTCConfig(opts.ice),
	})
	defer func() { _ = transport.Close() }()

	p := projector.New(cp, transport, cp, projector.Config{URL: wsURL, AutoReconnect: opts.reconnect})
	if err := p.Connect(ctx, room, domain.Identity(opts.identity)); err != nil {
		return err
	}
	defer func() { _ = p.Disconnect(context.Background()) }()

	r := &renderer{out: out}
	watchCtx, stopWatch := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.follow(watchCtx, p.Watch())
	}()
	defer func() {
		stopWatch()
		<-done
	}()

	return repl(ctx, p, in, out)
}

// chatClient is what the prompt drives.
type chatClient interface {
	SendChat(ctx context.Context, text string) error
	ToggleMute(ctx context.Context) error
	Snapshot() projector.Snapshot
}

// repl reads commands until /quit, EOF or ctx is done.
func repl(ctx context.Context, c chatClient, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		switch cmd := strings.TrimSpace(line); cmd {
		case "":
		case "/quit":
			return nil
		case "/mute":
			if err := c.ToggleMute(ctx); err != nil {
				fmt.Fprintf(out, "! mute: %v\n", err)
				continue
			}
			if c.Snapshot().Muted {
				fmt.Fprintln(out, "* microphone muted")
			} else {
				fmt.Fprintln(out, "* microphone live")
			}
		case "/who":
			printRoster(out, c.Snapshot())
		default:
			if strings.HasPrefix(cmd, "/") {
				fmt.Fprintf(out, "! unknown command %s\n", cmd)
				continue
			}
			if err := c.SendChat(ctx, line); err != nil {
				fmt.Fprintf(out, "! send: %v\n", err)
			}
		}
	}
}

func printRoster(out io.Writer, snap projector.Snapshot) {
	if len(snap.Participants) == 0 {
		fmt.Fprintln(out, "* not connected")
		return
	}
	for _, p := range snap.Participants {
		var flags []string
		if p.IsSelf {
			flags = append(flags, "you")
		}
		if !p.AudioEnabled {
			flags = append(flags, "muted")
		}
		if p.IsSpeaking {
			flags = append(flags, "speaking")
		}
		line := string(p.Identity)
		if len(flags) > 0 {
			line += " (" + strings.Join(flags, ", ") + ")"
		}
		fmt.Fprintf(out, "  %s\n", line)
	}
}

// renderer prints what changed between snapshots.
type renderer struct {
	out       io.Writer
	seen      int
	phase     domain.Phase
	transport string
	started   bool
}

func (r *renderer) follow(ctx context.Context, snaps <-chan projector.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			r.render(snap)
		}
	}
}

func (r *renderer) render(snap projector.Snapshot) {
	if !r.started || snap.Phase != r.phase {
		if r.started {
			fmt.Fprintf(r.out, "-- %s\n", snap.Phase)
		}
		r.phase = snap.Phase
		r.started = true
	}
	if snap.Transport != r.transport && snap.Transport != domain.UnknownTransport {
		fmt.Fprintf(r.out, "-- transport %s\n", snap.Transport)
	}
	r.transport = snap.Transport

	if len(snap.Transcript) < r.seen {
		r.seen = 0
	}
	for _, e := range snap.Transcript[r.seen:] {
		switch {
		case e.IsSystem:
			fmt.Fprintf(r.out, "* %s\n", e.Text)
		case e.IsLocal:
			fmt.Fprintf(r.out, "[you] %s\n", e.Text)
		default:
			fmt.Fprintf(r.out, "<%s> %s\n", e.SenderIdentity, e.Text)
		}
	}
	r.seen = len(snap.Transcript)
}

var _ chatClient = (*projector.Projector)(nil)
