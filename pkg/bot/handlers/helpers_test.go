package handlers

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/flowstate"
	"github.com/as3contender/alex-orator-bot/pkg/internal/testutil"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/matching"
	"github.com/as3contender/alex-orator-bot/pkg/pairing"
	"github.com/as3contender/alex-orator-bot/pkg/proposals"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/as3contender/alex-orator-bot/pkg/topics"
	telegram "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gorm.io/gorm"
)

type recordedRequest struct {
	path        string
	contentType string
	body        []byte
}

type mockClient struct {
	requests []recordedRequest
	response string
}

func newMockClient() *mockClient {
	return &mockClient{
		response: `{"ok":true,"result":{}}`,
	}
}

func (m *mockClient) Do(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if err := req.Body.Close(); err != nil {
		return nil, fmt.Errorf("failed to close request body: %w", err)
	}
	m.requests = append(m.requests, recordedRequest{
		path:        req.URL.Path,
		contentType: req.Header.Get("Content-Type"),
		body:        body,
	})

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(m.response)),
		Header:     make(http.Header),
	}, nil
}

func (m *mockClient) lastPath(t *testing.T) string {
	t.Helper()
	if len(m.requests) == 0 {
		t.Fatalf("expected at least one recorded request")
	}
	return m.requests[len(m.requests)-1].path
}

// lastMessageText returns the "text" field of the latest request, which is
// the message body for sendMessage and the toast for answerCallbackQuery.
func (m *mockClient) lastMessageText(t *testing.T) string {
	t.Helper()
	if len(m.requests) == 0 {
		t.Fatalf("expected at least one recorded request")
	}
	req := m.requests[len(m.requests)-1]

	mediaType, params, err := mime.ParseMediaType(req.contentType)
	if err != nil {
		t.Fatalf("failed to parse media type: %v", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		t.Fatalf("unexpected media type: %s", mediaType)
	}

	reader := multipart.NewReader(bytes.NewReader(req.body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read multipart part: %v", err)
		}
		if part.FormName() == "text" {
			data, err := io.ReadAll(part)
			if err != nil {
				t.Fatalf("failed to read text part: %v", err)
			}
			return string(data)
		}
	}
	return ""
}

func newTestTelegramBot(t *testing.T, client *mockClient) *telegram.Bot {
	t.Helper()
	b, err := telegram.New("test-token",
		telegram.WithSkipGetMe(),
		telegram.WithHTTPClient(time.Second, client),
	)
	if err != nil {
		t.Fatalf("failed to create test bot: %v", err)
	}
	return b
}

func newTestUpdate(text string, userID int64) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{
				ID:        userID,
				FirstName: fmt.Sprintf("User%d", userID),
			},
			Chat: models.Chat{
				ID: userID,
			},
			Text: text,
		},
	}
}

func newTestCallbackUpdate(data string, userID int64) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "callback-1",
			From: models.User{ID: userID, FirstName: fmt.Sprintf("User%d", userID)},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type: models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{
					ID: 1,
					Chat: models.Chat{
						ID:   userID,
						Type: models.ChatTypePrivate,
					},
				},
			},
		},
	}
}

var testNow = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

type env struct {
	gdb      *gorm.DB
	handlers *Handlers
	client   *mockClient
	bot      *telegram.Bot
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	gdb := testutil.SetupTestDB(t)
	logger.SetLogLevel(logger.ERROR)

	q := queue.New(gdb)
	regs := registration.NewService(gdb, topics.NewStatic("Storytelling - L1", "Debates - L2"))
	matcher := matching.NewMatcher(matching.NewDBSnapshot(gdb, regs), rand.New(rand.NewPCG(1, 1)))
	pairs := pairing.NewManager(gdb, q)
	props := proposals.NewService(gdb, matcher, regs, pairs, q, flowstate.NewMemoryStore(nil))

	client := newMockClient()
	return &env{
		gdb: gdb,
		handlers: New(Deps{
			DB:            gdb,
			Registrations: regs,
			Pairs:         pairs,
			Proposals:     props,
			Matcher:       matcher,
			Now:           func() time.Time { return testNow },
		}),
		client: client,
		bot:    newTestTelegramBot(t, client),
	}
}
