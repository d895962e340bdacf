package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/module/chat/message"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/realtime"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/ids"
)

var (
	convID        string
	userID        string
	receiverID    string
	text          string
	wait          time.Duration
	notifications bool
	statusAddr    string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect and print inbound events until interrupted",
	Example: `  docdoor listen --user 7 --conv 42
  docdoor listen --user 7 --notifications`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListen(cmd.Context(), "")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Listen like 'listen' and serve the connection table over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := statusAddr
		if addr == "" {
			addr = cfg.Status.Addr
		}
		if addr == "" {
			addr = "127.0.0.1:8089"
		}
		return runListen(cmd.Context(), addr)
	},
}

var sendCmd = &cobra.Command{
	Use:     "send",
	Short:   "Send one chat message and wait for the server confirmation",
	Example: `  docdoor send --user 7 --conv 42 --to 9 --text "see you at 10"`,
	RunE:    runSend,
}

func init() {
	for _, c := range []*cobra.Command{listenCmd, statusCmd, sendCmd} {
		c.Flags().StringVar(&userID, "user", "", "your user id")
		c.Flags().StringVar(&convID, "conv", "", "conversation id")
		_ = c.MarkFlagRequired("user")
	}
	for _, c := range []*cobra.Command{listenCmd, statusCmd} {
		c.Flags().BoolVar(&notifications, "notifications", true, "also open the notification channel")
	}
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "listen address for the status API (default status.addr)")

	sendCmd.Flags().StringVar(&receiverID, "to", "", "receiver user id")
	sendCmd.Flags().StringVar(&text, "text", "", "message text")
	sendCmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for message_sent, 0 to skip")
	_ = sendCmd.MarkFlagRequired("conv")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("text")
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runListen(parent context.Context, addr string) error {
	ctx, stop := signalContext(parent)
	defer stop()

	s, err := newSession(ctx, cfg, token)
	if err != nil {
		return err
	}
	defer s.close()

	printer := newEventPrinter(os.Stdout, userID)
	defer printer.attach(s.mgr.Bus())()

	if addr != "" {
		if err := s.serveStatus(addr); err != nil {
			return err
		}
	}

	var keys []realtime.SocketKey
	if convID != "" {
		keys = append(keys, realtime.ChatKey(convID, userID))
	}
	if notifications {
		keys = append(keys, realtime.NotificationKey(userID))
	}
	if len(keys) == 0 {
		return errors.New("nothing to listen to: pass --conv or keep --notifications")
	}
	for _, k := range keys {
		if _, ok := s.mgr.Acquire(ctx, k); !ok {
			s.log.Warn("initial connect failed, retrying in background", zap.String("key", k.String()))
		}
	}
	if notifications {
		s.mgr.GetNotifications(ctx, userID, 0)
	}

	<-ctx.Done()
	s.log.Info("shutting down")
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s, err := newSession(ctx, cfg, token)
	if err != nil {
		return err
	}
	defer s.close()

	printer := newEventPrinter(os.Stderr, userID)
	tl := printer.timeline(convID)
	confirmed := make(chan struct{}, 1)
	printer.onEvent = func(ev realtime.ChatEvent, out message.Outcome) {
		if isConfirmation(ev, out) {
			select {
			case confirmed <- struct{}{}:
			default:
			}
		}
	}
	defer printer.attach(s.mgr.Bus())()

	req := realtime.ChatMessageRequest{
		ConversationID: convID,
		UserID:         userID,
		ReceiverID:     receiverID,
		Content:        text,
	}
	req.TempID = tl.AddPending(ids.TempID(), userID, text, time.Now()).TempID
	res := s.mgr.SendChatMessage(ctx, req)
	if !res.Success {
		tl.Rollback(res.TempID)
	}
	_ = json.NewEncoder(os.Stdout).Encode(res)
	if !res.Success {
		return errors.New(res.Error)
	}
	if wait <= 0 {
		return nil
	}

	select {
	case <-confirmed:
		return nil
	case <-time.After(wait):
		return errors.Errorf("no confirmation within %s", wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isConfirmation reports whether ev turned our pending message into a sent
// one. Some gateways confirm with message_sent, others only echo the
// self-authored chat_message back to the room.
func isConfirmation(ev realtime.ChatEvent, out message.Outcome) bool {
	if out != message.Replaced {
		return false
	}
	return ev.MessageType == realtime.TypeMessageSent || ev.MessageType == realtime.TypeChatMessage
}
