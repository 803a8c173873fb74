// Package assistant integrates the AI helper: conversational help in the
// IDE terminal and automated review of smart contract code. All calls go
// through the Anthropic API; without an API key the package degrades to
// static checks only.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrDisabled is returned when no API key was configured.
var ErrDisabled = errors.New("assistant not configured")

// historyLimit bounds the per-user conversation so context never grows
// without limit.
const historyLimit = 20

const chatSystemPrompt = `You are a coding assistant embedded in a browser IDE for Qubic smart contract and CLI development. Users write C++ against the Qubic QPI (no floating point, no typedef, no union, contracts inherit from QPI::ContractBase) and interact with the qubic-cli tool. Answer concisely; prefer small code examples over prose.`

const reviewSystemPrompt = `You review Qubic smart contract C++ code. Point out violations of QPI constraints (floating point, typedef, union, missing qpi.h include, missing ContractBase inheritance), obvious logic errors, and unsafe patterns. Be terse and concrete; number your findings.`

// Client wraps the Anthropic API and keeps one bounded conversation per
// user.
type Client struct {
	model    string
	generate func(ctx context.Context, system string, msgs []anthropic.MessageParam) (string, error)

	mu        sync.Mutex
	histories map[string][]anthropic.MessageParam
}

// NewClient builds a Client. An empty apiKey yields a disabled client whose
// calls return ErrDisabled.
func NewClient(apiKey, model string) *Client {
	c := &Client{
		model:     model,
		histories: make(map[string][]anthropic.MessageParam),
	}
	if apiKey == "" {
		return c
	}
	api := anthropic.NewClient(option.WithAPIKey(apiKey))
	c.generate = func(ctx context.Context, system string, msgs []anthropic.MessageParam) (string, error) {
		resp, err := api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 2048,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages:  msgs,
		})
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return sb.String(), nil
	}
	return c
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool {
	return c.generate != nil
}

// Chat sends one user message and returns the reply, carrying the user's
// recent conversation as context.
func (c *Client) Chat(ctx context.Context, user, message string) (string, error) {
	if c.generate == nil {
		return "", ErrDisabled
	}

	c.mu.Lock()
	history := append(c.histories[user], anthropic.NewUserMessage(anthropic.NewTextBlock(message)))
	c.mu.Unlock()

	reply, err := c.generate(ctx, chatSystemPrompt, history)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	history = append(history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(reply)))
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	c.histories[user] = history
	c.mu.Unlock()

	return reply, nil
}

// Review performs a one-shot review of contract code, with no conversation
// history on either side.
func (c *Client) Review(ctx context.Context, code string) (string, error) {
	if c.generate == nil {
		return "", ErrDisabled
	}
	msgs := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock("Review this contract:\n\n" + code)),
	}
	return c.generate(ctx, reviewSystemPrompt, msgs)
}

// ClearHistory drops a user's conversation, typically on logout.
func (c *Client) ClearHistory(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.histories, user)
}
