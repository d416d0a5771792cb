package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier reaches the operator. Every method is best-effort: failures are
// logged and swallowed so a broken channel never stops the workflow.
type Notifier interface {
	Alert(ctx context.Context, msg, sound string)
	Annoy(ctx context.Context)
	SMS(ctx context.Context, msg string)
	Chat(ctx context.Context, msg string)
	Email(ctx context.Context, subject, body string)
}

// SendFailedError describes a failed delivery on one channel.
type SendFailedError struct {
	Channel string
	Cause   error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("notify: %s: %v", e.Channel, e.Cause)
}

func (e *SendFailedError) Unwrap() error { return e.Cause }

type commandRunner func(ctx context.Context, name string, args ...string) error

func execCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

type Notifications struct {
	config NotifyConfig
	logger *slog.Logger
	client *resty.Client
	run    commandRunner
	goos   string
	sleep  func(ctx context.Context, d time.Duration) error
	mailer mailSender
}

func NewNotifications(config NotifyConfig, logger *slog.Logger) *Notifications {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(0)

	return &Notifications{
		config: config,
		logger: logger,
		client: client,
		run:    execCommand,
		goos:   runtime.GOOS,
		sleep:  sleepContext,
		mailer: smtpMailer{},
	}
}

func (n *Notifications) report(channel string, err error) {
	if err == nil {
		n.logger.Debug("notification sent", "channel", channel)
		return
	}
	n.logger.Warn("notification failed", "error", &SendFailedError{Channel: channel, Cause: err})
}

func (n *Notifications) Alert(ctx context.Context, msg, sound string) {
	if sound == "" {
		sound = n.config.AlertSound
	}
	fmt.Println("🔔 " + msg)
	n.report("alert", n.osNotify(ctx, msg, sound))
}

// Annoy plays the attention sound several times in a row.
func (n *Notifications) Annoy(ctx context.Context) {
	a := n.config.Annoy
	for i := 0; i < a.Repeat; i++ {
		if err := n.playSound(ctx, a.Sound); err != nil {
			n.report("annoy", err)
			return
		}
		if i < a.Repeat-1 {
			if err := n.sleep(ctx, a.Interval); err != nil {
				return
			}
		}
	}
	n.report("annoy", nil)
}

func (n *Notifications) SMS(ctx context.Context, msg string) {
	tw := n.config.Twilio
	if tw.AccountSID == "" || tw.AuthToken == "" || tw.To == "" {
		n.logger.Debug("sms not configured, skipping")
		return
	}
	n.report("sms", n.sendTwilio(ctx, tw, msg))
}

func (n *Notifications) Chat(ctx context.Context, msg string) {
	tg := n.config.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		n.logger.Debug("telegram not configured, skipping")
		return
	}
	n.report("telegram", n.sendTelegram(ctx, tg, msg))
}

func (n *Notifications) Email(ctx context.Context, subject, body string) {
	em := n.config.Email
	if em.SMTPServer == "" || len(em.To) == 0 {
		n.logger.Debug("email not configured, skipping")
		return
	}
	n.report("email", n.mailer.Send(em, subject, body))
}

func (n *Notifications) osNotify(ctx context.Context, msg, sound string) error {
	switch n.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(msg), appleScriptString("deliverance"))
		if sound != "" {
			script += " sound name " + appleScriptString(sound)
		}
		return n.run(ctx, "osascript", "-e", script)
	case "linux":
		return n.run(ctx, "notify-send", "deliverance", msg)
	default:
		fmt.Print("\a")
		return nil
	}
}

func (n *Notifications) playSound(ctx context.Context, sound string) error {
	if n.goos == "darwin" && sound != "" {
		return n.run(ctx, "afplay", "/System/Library/Sounds/"+sound+".aiff")
	}
	fmt.Print("\a")
	return nil
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
