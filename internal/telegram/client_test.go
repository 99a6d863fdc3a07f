package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/pumpwatch/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// chat id is parsed before the bot is created, so this never reaches the network
	_, err := NewClient("", "not-a-number")
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatError(t *testing.T) {
	got := formatError(errors.New("failed to refresh universe: status 503"))
	want := "⚠️ *Monitoring error*\n`failed to refresh universe: status 503`"
	if got != want {
		t.Errorf("formatError = %q, want %q", got, want)
	}
	if got := formatError(errors.New("a.b")); !strings.Contains(got, "a\\.b") {
		t.Errorf("expected escaped dot in %q", got)
	}
}

type fakeStatus string

func (f fakeStatus) Status() string { return string(f) }

type fakeAlerts struct {
	alerts []models.Alert
	err    error
	asked  int
}

func (f *fakeAlerts) GetRecentAlerts(k int) ([]models.Alert, error) {
	f.asked = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.alerts) > k {
		return f.alerts[:k], nil
	}
	return f.alerts, nil
}

func TestCommandReply(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	log := &fakeAlerts{alerts: []models.Alert{
		{Symbol: "AAA-USDT", Score: 6, DetectedAt: at, Reasons: []string{"Trade burst: 12 trades", "Price increase: +0.1000"}},
		{Symbol: "BBB-USDT", Score: 5, DetectedAt: at.Add(-time.Minute)},
	}}

	tests := []struct {
		command string
		status  StatusSource
		alerts  AlertSource
		want    string
	}{
		{"ping", nil, nil, "Pong"},
		{"status", fakeStatus("Symbols: 7"), nil, "Symbols: 7"},
		{"status", nil, nil, "Status unavailable"},
		{"recent", nil, nil, "No alert log configured"},
		{"recent", nil, &fakeAlerts{}, "No alerts recorded yet"},
		{"recent", nil, &fakeAlerts{err: errors.New("boom")}, "Failed to read recent alerts"},
		{"recent", nil, log, "Recent alerts:\n" +
			"1. [2024-03-01 12:00:00] AAA-USDT Score=6 | Trade burst: 12 trades, Price increase: +0.1000\n" +
			"2. [2024-03-01 11:59:00] BBB-USDT Score=5"},
		{"unknown", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := commandReply(tt.command, tt.status, tt.alerts); got != tt.want {
				t.Errorf("commandReply(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
	if log.asked != recentAlertCount {
		t.Errorf("asked for %d alerts, want %d", log.asked, recentAlertCount)
	}
}
