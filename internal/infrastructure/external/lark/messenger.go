package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/pkg/utils"
)

// messageCreator is the slice of the IM API the messenger uses
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.Notifier by posting Lark messages to the
// recipient's email address. Without a client it only logs.
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark notifier. A nil client yields a
// log-only messenger for local runs.
func NewMessenger(client *Client, logger *zap.Logger) *Messenger {
	m := &Messenger{logger: logger}
	if client != nil {
		m.messages = client.GetClient().Im.Message
	}
	return m
}

// Notify sends a post message with the subject as title
func (m *Messenger) Notify(ctx context.Context, toEmail, subject, body string) error {
	if err := utils.ValidateEmail(toEmail); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	if m.messages == nil {
		m.logger.Info("Lark disabled, notification logged only",
			zap.String("email", toEmail),
			zap.String("subject", subject))
		return nil
	}

	content, err := postContent(subject, body)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("email").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(toEmail).
			MsgType("post").
			Content(content).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("email", toEmail),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("email", toEmail),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("email", toEmail))

	return nil
}

var (
	breakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
)

// postContent builds the JSON content of a post message. Lark posts are
// not HTML, so tags are reduced to line breaks and text.
func postContent(title, body string) (string, error) {
	text := breakTags.ReplaceAllString(utils.SanitizeString(body), "\n")
	text = html.UnescapeString(anyTag.ReplaceAllString(text, ""))

	var lines [][]map[string]string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, []map[string]string{{"tag": "text", "text": line}})
		}
	}

	content, err := json.Marshal(map[string]interface{}{
		"en_us": map[string]interface{}{
			"title":   utils.SanitizeString(title),
			"content": lines,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(content), nil
}

// Verify interface compliance
var _ port.Notifier = (*Messenger)(nil)
