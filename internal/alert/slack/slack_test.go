package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/mhai/internal/alert"
)

type mockSlackClient struct {
	posts    []string
	options  [][]slackapi.MsgOption
	failures []error // returned in order before succeeding
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return "", "", err
	}
	m.posts = append(m.posts, channelID)
	m.options = append(m.options, options)
	return channelID, "1700000000.000100", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without bot token")
	}
	if _, err := New(Opts{BotToken: "xoxb-test"}); err == nil {
		t.Error("expected error without channel")
	}
	if _, err := New(Opts{BotToken: "xoxb-test", ChannelID: "C1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNotify_PostsToChannel(t *testing.T) {
	mock := &mockSlackClient{}
	n, err := New(Opts{ChannelID: "C-ALERTS", Client: mock})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = n.Notify(context.Background(), alert.Alert{Title: "Answer failed", Severity: alert.SeverityError})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(mock.posts) != 1 || mock.posts[0] != "C-ALERTS" {
		t.Errorf("posts = %v, want [C-ALERTS]", mock.posts)
	}
	if len(mock.options[0]) != 2 {
		t.Errorf("options = %d, want text and attachment", len(mock.options[0]))
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	mock := &mockSlackClient{failures: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	n, _ := New(Opts{ChannelID: "C1", Client: mock})
	if err := n.Notify(context.Background(), alert.Alert{Title: "x"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(mock.posts) != 1 {
		t.Errorf("posts = %d, want 1 after retry", len(mock.posts))
	}
}

func TestNotify_OtherErrorNotRetried(t *testing.T) {
	mock := &mockSlackClient{failures: []error{errors.New("channel_not_found")}}
	n, _ := New(Opts{ChannelID: "C1", Client: mock})
	if err := n.Notify(context.Background(), alert.Alert{Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.posts) != 0 {
		t.Errorf("posts = %d, want 0", len(mock.posts))
	}
}

func TestToAttachment(t *testing.T) {
	att := toAttachment(alert.Alert{
		Title:    "Stale message",
		Body:     "swept",
		Severity: alert.SeverityWarning,
		Fields:   []alert.Field{{Name: "id", Value: "7", Short: true}},
	})
	if att.Title != "Stale message" || att.Text != "swept" || att.Color != "#daa038" {
		t.Errorf("attachment = %+v", att)
	}
	if len(att.Fields) != 1 || att.Fields[0].Title != "id" || !att.Fields[0].Short {
		t.Errorf("fields = %+v", att.Fields)
	}
}
