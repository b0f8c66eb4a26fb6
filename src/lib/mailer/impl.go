// Package mailer enqueues outbound email instead of sending inline. The
// queue worker in common resolves the recipient handle and does the actual
// delivery, so a slow SMTP conversation never sits inside a request.
package mailer

import (
	"encoding/json"
	"fmt"
	"os"

	"parkbook/src/lib"
	"parkbook/src/types"
	"parkbook/src/utils"
)

func NewMailerMessage(templateId string, recipient string, vars types.JSONB) error {
	emailQueue := os.Getenv("EMAIL_QUEUE")
	if emailQueue == "" {
		emailQueue = "EmailsToSend"
	}
	apiEnv := os.Getenv("API_ENV")
	emailBody := &types.JSONB{
		"template":  templateId,
		"recipient": recipient,
		"vars":      map[string]any(vars),
	}
	if apiEnv == "local" {
		if err := lib.KafkaProduceMessage("emails", utils.WithSuffix(emailQueue), emailBody); err != nil {
			return fmt.Errorf("error sending message to queue: %s", err.Error())
		}
		return nil
	}
	body, err := json.Marshal(&emailBody)
	if err != nil {
		return err
	}
	if err := lib.SQSProduceMessage(utils.WithSuffix(emailQueue), string(body)); err != nil {
		return fmt.Errorf("error sending message to queue: %s", err.Error())
	}
	return nil
}

// Queue satisfies the Mailer contract of the domain services.
type Queue struct{}

func (Queue) Send(templateId string, recipient string, vars types.JSONB) error {
	return NewMailerMessage(templateId, recipient, vars)
}
