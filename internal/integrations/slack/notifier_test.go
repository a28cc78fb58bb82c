package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSlack struct {
	mu        sync.Mutex
	posts     []map[string]string
	userCalls int
	usersOK   bool
}

func newMockSlack(t *testing.T, postOK bool) (*mockSlack, string) {
	t.Helper()
	m := &mockSlack{usersOK: true}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		_ = r.ParseForm()
		m.mu.Lock()
		defer m.mu.Unlock()
		switch path {
		case "chat.postMessage":
			m.posts = append(m.posts, map[string]string{
				"channel": r.FormValue("channel"),
				"text":    r.FormValue("text"),
			})
			if !postOK {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1.0"})
		case "users.list":
			m.userCalls++
			if !m.usersOK {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "missing_scope"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"members": []map[string]any{
					{"id": "U0000ANN1", "name": "ann", "profile": map[string]any{"display_name": "Ann W"}},
					{"id": "U0000BOB1", "name": "bob", "real_name": "Bob Li", "profile": map[string]any{"display_name": "Bob"}},
				},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return m, server.URL + "/api/"
}

func TestNewRequiresTokenAndChannel(t *testing.T) {
	assert.Nil(t, New("", "C1", nil, nil))
	assert.Nil(t, New("xoxb-test", " ", nil, nil))

	var n *Notifier
	assert.NoError(t, n.Notify(context.Background(), "Merge", "nothing"))
}

func TestNotifyPostsSummary(t *testing.T) {
	mock, url := newMockSlack(t, true)
	n := New("xoxb-test", "C123", nil, nil, slack.OptionAPIURL(url))
	require.NotNil(t, n)

	require.NoError(t, n.Notify(context.Background(), "Merge finished", "2 succeeded, 0 failed."))
	require.Len(t, mock.posts, 1)
	assert.Equal(t, "C123", mock.posts[0]["channel"])
	assert.Equal(t, "Merge finished: 2 succeeded, 0 failed.", mock.posts[0]["text"])
}

func TestNotifyMentionsResolvedUsers(t *testing.T) {
	mock, url := newMockSlack(t, true)
	n := New("xoxb-test", "C123", []string{"U0000ANN1", "@bob", "nobody", "BOB"}, nil, slack.OptionAPIURL(url))

	require.NoError(t, n.Notify(context.Background(), "Classify", "done"))
	require.NoError(t, n.Notify(context.Background(), "Classify", "again"))
	require.NoError(t, n.Notify(context.Background(), "Merge", "done"))
	require.Len(t, mock.posts, 3)
	assert.Equal(t, "<@U0000ANN1> <@U0000BOB1> Classify: done", mock.posts[0]["text"])
	assert.Equal(t, "<@U0000ANN1> <@U0000BOB1> Merge: done", mock.posts[2]["text"])
	assert.Equal(t, 1, mock.userCalls, "members are listed once per notifier")
}

func TestNotifyRetriesFailedUserLookup(t *testing.T) {
	mock, url := newMockSlack(t, true)
	mock.usersOK = false
	n := New("xoxb-test", "C123", []string{"bob"}, nil, slack.OptionAPIURL(url))

	require.NoError(t, n.Notify(context.Background(), "Merge", "first"))
	mock.mu.Lock()
	mock.usersOK = true
	mock.mu.Unlock()
	require.NoError(t, n.Notify(context.Background(), "Merge", "second"))

	require.Len(t, mock.posts, 2)
	assert.Equal(t, "Merge: first", mock.posts[0]["text"], "notice still goes out without mentions")
	assert.Equal(t, "<@U0000BOB1> Merge: second", mock.posts[1]["text"])
	assert.Equal(t, 2, mock.userCalls)
}

func TestNotifyWithoutMentionsSkipsUserLookup(t *testing.T) {
	mock, url := newMockSlack(t, true)
	n := New("xoxb-test", "C123", nil, nil, slack.OptionAPIURL(url))

	require.NoError(t, n.Notify(context.Background(), "Run", "ok"))
	assert.Zero(t, mock.userCalls)
}

func TestNotifyReportsSlackError(t *testing.T) {
	_, url := newMockSlack(t, false)
	n := New("xoxb-test", "C404", nil, nil, slack.OptionAPIURL(url))

	err := n.Notify(context.Background(), "Run", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestMatchMentions(t *testing.T) {
	members := []slack.User{
		{ID: "U1", Name: "ann", Profile: slack.UserProfile{DisplayName: "Ann W"}},
		{ID: "U2", Name: "bob"},
	}
	prefix, missing := matchMentions([]string{" ann w ", "U2", "", "@Ann", "carol"}, members)
	assert.Equal(t, "<@U1> <@U2>", prefix)
	assert.Equal(t, []string{"carol"}, missing)

	prefix, missing = matchMentions([]string{"U9"}, nil)
	assert.Empty(t, prefix)
	assert.Equal(t, []string{"U9"}, missing)
}
