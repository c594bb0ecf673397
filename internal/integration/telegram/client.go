package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"
)

type Client struct {
	bot *telego.Bot
}

// NewClient returns nil when no token is configured.
func NewClient(token string, opts ...telego.BotOption) (*Client, error) {
	if token == "" {
		return nil, nil
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Client{bot: bot}, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c == nil || c.bot == nil {
		return fmt.Errorf("telegram client not initialized")
	}

	msg := telegoutil.Message(
		telegoutil.ID(chatID),
		text,
	).WithParseMode(telego.ModeHTML)

	_, err := c.bot.SendMessage(ctx, msg)
	return err
}
