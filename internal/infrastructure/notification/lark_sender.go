package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// LarkConfig holds Lark app credentials
type LarkConfig struct {
	AppID     string
	AppSecret string
	// Domain selects the API host: "feishu" (default) or "lark"
	Domain string
}

// LarkMessenger implements port.LarkMessageSender with the Lark SDK
type LarkMessenger struct {
	client *lark.Client
	logger *zap.Logger
}

// NewLarkMessenger creates a Lark SDK client with token caching
func NewLarkMessenger(cfg LarkConfig, logger *zap.Logger) *LarkMessenger {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if strings.EqualFold(cfg.Domain, "lark") {
		opts = append(opts, lark.WithOpenBaseUrl(lark.LarkBaseUrl))
	}

	return &LarkMessenger{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		logger: logger,
	}
}

// SendMessage sends a text message to a user by open_id
func (m *LarkMessenger) SendMessage(ctx context.Context, openID string, content string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	textContent, err := textMessage(content)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType("text").
			Content(textContent).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message", zap.String("receive_id", openID), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", openID),
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
		zap.String("receive_id", openID))

	return nil
}

// textMessage encodes content in Lark's text message format
func textMessage(content string) (string, error) {
	b, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(b), nil
}

// LarkSender adapts a port.LarkMessageSender to port.MessageSender
type LarkSender struct {
	messenger port.LarkMessageSender
}

// NewLarkSender creates a chat channel over messenger
func NewLarkSender(messenger port.LarkMessageSender) *LarkSender {
	return &LarkSender{messenger: messenger}
}

// Name implements port.MessageSender
func (s *LarkSender) Name() string {
	return "lark"
}

// Send posts subject and text as one chat message.
// Recipients without an open_id are skipped.
func (s *LarkSender) Send(ctx context.Context, msg *port.Message) error {
	if msg.ToOpenID == "" {
		return nil
	}
	content := msg.Subject
	if msg.Text != "" {
		content += "\n\n" + msg.Text
	}
	return s.messenger.SendMessage(ctx, msg.ToOpenID, content)
}

// Verify interface compliance
var (
	_ port.LarkMessageSender = (*LarkMessenger)(nil)
	_ port.MessageSender     = (*LarkSender)(nil)
)
