// Package notify provides webhook notifications for wallet and miner events.
package notify

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// WebhookConfig holds webhook configuration
type WebhookConfig struct {
	Enabled       bool
	DiscordURL    string
	TelegramBot   string
	TelegramChat  string
	TelegramAPI   string
	DashboardName string
	DashboardURL  string
	Fiat          string
}

// Retry configuration
const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second

	defaultTelegramAPI = "https://api.telegram.org"
)

// Notifier handles sending notifications
type Notifier struct {
	cfg        *WebhookConfig
	client     *http.Client
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewNotifier creates a new notifier
func NewNotifier(cfg *WebhookConfig) *Notifier {
	if cfg.TelegramAPI == "" {
		cfg.TelegramAPI = defaultTelegramAPI
	}
	if cfg.DashboardName == "" {
		cfg.DashboardName = "P2Pool Dashboard"
	}
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelay: RetryBaseDelay,
	}
}

// Enabled reports whether any channel is configured
func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled && (n.cfg.DiscordURL != "" || n.telegramConfigured())
}

// Wait blocks until in-flight notifications finish
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// NotifyPayout announces a new payout to the wallet
func (n *Notifier) NotifyPayout(p analytics.Payout, price float64) {
	if !n.cfg.Enabled {
		return
	}

	fields := []DiscordField{
		{Name: "Amount", Value: fmt.Sprintf("%.6f XMR", p.XMR()), Inline: true},
		{Name: "Received", Value: time.Unix(p.Timestamp, 0).UTC().Format("2006-01-02 15:04 UTC"), Inline: true},
	}
	text := fmt.Sprintf("*Payout Received*\n\nAmount: `%.6f XMR`", p.XMR())
	if price > 0 {
		fiat := strings.ToUpper(n.cfg.Fiat)
		fields = append(fields, DiscordField{Name: "Value", Value: fmt.Sprintf("%.2f %s", p.XMR()*price, fiat), Inline: true})
		text += fmt.Sprintf("\nValue: `%.2f %s`", p.XMR()*price, fiat)
	}

	n.dispatch(DiscordEmbed{
		Title:  "Payout Received",
		Color:  0x00FF00, // Green
		Fields: fields,
	}, text)
}

// NotifyPoolBlock announces a main chain block found by the pool
func (n *Notifier) NotifyPoolBlock(foundAt int64, effort float64) {
	if !n.cfg.Enabled {
		return
	}

	n.dispatch(DiscordEmbed{
		Title: "Pool Found a Block",
		Color: 0x0099FF, // Blue
		Fields: []DiscordField{
			{Name: "Found", Value: time.Unix(foundAt, 0).UTC().Format("2006-01-02 15:04 UTC"), Inline: true},
			{Name: "Effort", Value: fmt.Sprintf("%.2f%%", effort), Inline: true},
		},
	}, fmt.Sprintf("*Pool Found a Block*\n\nEffort: `%.2f%%`", effort))
}

// NotifyMinerOffline warns that the stratum reports no connections
func (n *Notifier) NotifyMinerOffline(lastShare int64) {
	if !n.cfg.Enabled {
		return
	}

	last := "never"
	if lastShare > 0 {
		last = util.FormatRelative(lastShare, time.Now())
	}

	n.dispatch(DiscordEmbed{
		Title:       "Miner Offline",
		Description: "No workers are connected to the local stratum",
		Color:       0xFF0000, // Red
		Fields: []DiscordField{
			{Name: "Last Share", Value: last, Inline: true},
		},
	}, fmt.Sprintf("*Miner Offline*\n\nLast share: `%s`", last))
}

// NotifyMinerOnline announces that workers reconnected
func (n *Notifier) NotifyMinerOnline(workers int) {
	if !n.cfg.Enabled {
		return
	}

	n.dispatch(DiscordEmbed{
		Title: "Miner Online",
		Color: 0x00FF00, // Green
		Fields: []DiscordField{
			{Name: "Workers", Value: fmt.Sprintf("%d", workers), Inline: true},
		},
	}, fmt.Sprintf("*Miner Online*\n\nWorkers: `%d`", workers))
}

func (n *Notifier) telegramConfigured() bool {
	return n.cfg.TelegramBot != "" && n.cfg.TelegramChat != ""
}

// dispatch sends the event to every configured channel asynchronously
func (n *Notifier) dispatch(embed DiscordEmbed, telegramText string) {
	if n.cfg.DiscordURL != "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
		embed.Footer = &DiscordFooter{Text: n.cfg.DashboardName}
		if n.cfg.DashboardURL != "" {
			embed.URL = n.cfg.DashboardURL
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.sendDiscordMessageWithRetry(DiscordMessage{Embeds: []DiscordEmbed{embed}})
		}()
	}

	if n.telegramConfigured() {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.sendTelegramMessageWithRetry(telegramText)
		}()
	}
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField represents a field in a Discord embed
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter represents the footer of a Discord embed
type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// TelegramMessage represents a Telegram bot message
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendDiscordMessageWithRetry sends a message to Discord with exponential backoff retry
func (n *Notifier) sendDiscordMessageWithRetry(msg DiscordMessage) {
	body, err := sonic.Marshal(msg)
	if err != nil {
		util.Warnf("Failed to marshal Discord message: %v", err)
		return
	}

	if err := n.postWithRetry(n.cfg.DiscordURL, body); err != nil {
		util.Warnf("Failed to send Discord notification after %d retries: %v", MaxRetries, err)
	}
}

// sendTelegramMessageWithRetry sends a message via the Telegram Bot API
func (n *Notifier) sendTelegramMessageWithRetry(text string) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.cfg.TelegramAPI, "/"), n.cfg.TelegramBot)

	body, err := sonic.Marshal(TelegramMessage{
		ChatID:    n.cfg.TelegramChat,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		util.Warnf("Failed to marshal Telegram message: %v", err)
		return
	}

	if err := n.postWithRetry(url, body); err != nil {
		util.Warnf("Failed to send Telegram notification after %d retries: %v", MaxRetries, err)
	}
}

func (n *Notifier) postWithRetry(url string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2s, 4s
			time.Sleep(n.retryDelay * time.Duration(1<<uint(attempt-1)))
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return nil
		}

		// Rate limited - wait longer
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited")
			time.Sleep(n.retryDelay * 2)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}
	return lastErr
}
