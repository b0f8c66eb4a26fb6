// Package common holds the background queue workers. The email worker drains
// the outbound mail queue written by lib/mailer, resolves recipient handles
// to addresses and delivers through SES in production or plain SMTP locally.
package common

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"parkbook/src/db"
	"parkbook/src/lib"
	awslib "parkbook/src/lib/aws"
	"parkbook/src/models"
	"parkbook/src/utils"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	sesTypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/tidwall/gjson"
)

const defaultEmailQueue = "EmailsToSend"

func emailQueueName() string {
	q := os.Getenv("EMAIL_QUEUE")
	if q == "" {
		q = defaultEmailQueue
	}
	return utils.WithSuffix(q)
}

// resolveRecipient turns an opaque handle like renter:42 into an address.
// Anything without a known prefix is taken as a literal address.
func resolveRecipient(recipient string) (string, error) {
	if !strings.HasPrefix(recipient, "renter:") {
		return recipient, nil
	}
	sid := strings.TrimPrefix(recipient, "renter:")
	uid, err := strconv.Atoi(sid)
	if err != nil {
		return "", fmt.Errorf("bad recipient handle %q: %w", recipient, err)
	}
	conn := db.GetDb()
	var user models.User
	if err := conn.Model(&models.User{}).Where(&models.User{ID: uint(uid)}).First(&user).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}

func renderTemplate(template string, vars gjson.Result) (subject, body string) {
	spaceRef := vars.Get("space_ref").String()
	switch template {
	case "booking-approved":
		subject = fmt.Sprintf("Your booking for %s is confirmed", spaceRef)
		body = fmt.Sprintf("Good news! Your booking for parking space %s has been approved. You can now message the administrator from your booking page.", spaceRef)
	case "booking-rejected":
		subject = fmt.Sprintf("Your booking request for %s was declined", spaceRef)
		body = fmt.Sprintf("Unfortunately your booking request for parking space %s was declined. The hold on your payment method has been released.", spaceRef)
	case "booking-anniversary":
		subject = fmt.Sprintf("Monthly check-in for your space at %s", spaceRef)
		body = fmt.Sprintf("Another month at parking space %s! Reply to this email or use your booking page if anything needs attention.", spaceRef)
	default:
		subject = "Parkbook notification"
		body = fmt.Sprintf("You have a new notification for parking space %s.", spaceRef)
	}
	return subject, body
}

func handleEmailMessage(spayload string) {
	qname := emailQueueName()
	if !gjson.Valid(spayload) {
		log.Printf("[%s]: Received invalid json body. Aborting", qname)
		return
	}
	template := gjson.Get(spayload, "template").String()
	recipient := gjson.Get(spayload, "recipient").String()
	vars := gjson.Get(spayload, "vars")

	to, err := resolveRecipient(recipient)
	if err != nil {
		log.Printf("[MAILER] cannot resolve recipient %s: %s\n", recipient, err.Error())
		return
	}
	subject, body := renderTemplate(template, vars)
	from := os.Getenv("EMAIL_FROM")

	if utils.IsProd() {
		err = awslib.SESSendMessage(
			awssdk.String(from),
			&sesTypes.Destination{ToAddresses: []string{to}},
			&sesTypes.Message{
				Subject: &sesTypes.Content{Data: awssdk.String(subject)},
				Body:    &sesTypes.Body{Text: &sesTypes.Content{Data: awssdk.String(body)}},
			},
		)
	} else {
		err = lib.SendMail(&lib.SendMailInput{
			From:     from,
			FromName: "Parkbook",
			To:       []string{to},
			Subject:  subject,
			Body:     body,
		})
	}
	if err != nil {
		log.Printf("[MAILER] error sending email: %s\n", err.Error())
		return
	}
	log.Printf("[MAILER]: an email has been sent to %s\n", to)
}

// EmailsToSendConsumer starts the queue worker. Locally the queue is a kafka
// topic, in production it is SQS.
func EmailsToSendConsumer() {
	qname := emailQueueName()
	if utils.IsProd() {
		c := awslib.NewSQSConsumer(qname, handleEmailMessage)
		c.Listen()
		return
	}
	lib.KafkaConsumer("emails", qname, handleEmailMessage)
}
