package main

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *Notifications) sendTwilio(ctx context.Context, tw TwilioConfig, msg string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(tw.APIBaseURL, "/"), tw.AccountSID)

	var apiErr twilioError
	resp, err := n.client.R().
		SetContext(ctx).
		SetBasicAuth(tw.AccountSID, tw.AuthToken).
		SetFormData(map[string]string{
			"From": tw.From,
			"To":   tw.To,
			"Body": msg,
		}).
		SetError(&apiErr).
		Post(endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return nil
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifications) sendTelegram(ctx context.Context, tg TelegramConfig, msg string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(tg.APIBaseURL, "/"), tg.BotToken)

	var result telegramResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": tg.ChatID,
			"text":    msg,
		}).
		SetResult(&result).
		SetError(&result).
		Post(endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}

type mailSender interface {
	Send(config EmailConfig, subject, body string) error
}

type smtpMailer struct{}

func (smtpMailer) Send(config EmailConfig, subject, body string) error {
	mail := email.NewEmail()
	mail.From = config.From
	mail.To = config.To
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", config.SMTPServer, config.SMTPPort)

	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPServer)
	}
	return mail.Send(addr, auth)
}
