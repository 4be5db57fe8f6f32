package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"upi_qr_bot/internal/upi"
)

type fakeRegistrar struct {
	created bool
	err     error

	gotUserID int64
	gotName   string
}

func (f *fakeRegistrar) EnsureUser(_ context.Context, userID int64, name string) (bool, error) {
	f.gotUserID = userID
	f.gotName = name
	return f.created, f.err
}

type fakeStats struct {
	count int64
	err   error
}

func (f fakeStats) CountUsers(context.Context) (int64, error) {
	return f.count, f.err
}

type fakeLister struct {
	ids []int64
	err error
}

func (f fakeLister) ListIDs(context.Context) ([]int64, error) {
	return f.ids, f.err
}

func commandUpdate(text string, userID, chatID int64) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: userID, FirstName: "Asha"},
			Chat: models.Chat{ID: chatID},
			Text: text,
		},
	}
}

func lastMessageText(t *testing.T, fb *fakeBot) string {
	t.Helper()
	if len(fb.sentMessages) == 0 {
		t.Fatalf("expected at least one sent message")
	}
	return fb.sentMessages[len(fb.sentMessages)-1].Text
}

func TestParseQRArgs(t *testing.T) {
	defaults := upi.StandardDefaults()

	tests := []struct {
		name    string
		text    string
		want    upi.PaymentRequest
		wantErr string
	}{
		{
			name:    "missing amount",
			text:    "/qr yourname@okaxis",
			wantErr: usageText,
		},
		{
			name:    "bare command",
			text:    "/qr",
			wantErr: usageText,
		},
		{
			name:    "invalid upi id",
			text:    "/qr bad_id 10",
			wantErr: invalidUPIText,
		},
		{
			name:    "invalid amount",
			text:    "/qr yourname@okaxis 12.345",
			wantErr: invalidAmountText,
		},
		{
			name:    "negative amount",
			text:    "/qr yourname@okaxis -5",
			wantErr: invalidAmountText,
		},
		{
			name: "defaults applied",
			text: "/qr yourname@okaxis 149.99",
			want: upi.PaymentRequest{
				UPIID:     "yourname@okaxis",
				Amount:    "149.99",
				PayeeName: upi.DefaultPayeeName,
				Note:      upi.DefaultNote,
			},
		},
		{
			name: "underscores become spaces",
			text: "/qr yourname@okaxis 250 John_Doe Lunch_bill",
			want: upi.PaymentRequest{
				UPIID:     "yourname@okaxis",
				Amount:    "250",
				PayeeName: "John Doe",
				Note:      "Lunch bill",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, errText := parseQRArgs(tt.text, defaults)
			if errText != tt.wantErr {
				t.Fatalf("parseQRArgs() error text = %q, want %q", errText, tt.wantErr)
			}
			if tt.wantErr == "" && got != tt.want {
				t.Fatalf("parseQRArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandleQRRejectsInvalidIDWithoutPhoto(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)

	client.handleQR(context.Background(), nil, commandUpdate("/qr bad_id 10", 1, 100))

	if len(fb.sentPhotos) != 0 {
		t.Fatalf("expected no photo for invalid UPI id, got %d", len(fb.sentPhotos))
	}

	if got := lastMessageText(t, fb); got != invalidUPIText {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHandleQRSendsPhotoWithCaption(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)

	client.handleQR(context.Background(), nil, commandUpdate("/qr yourname@okaxis 149.99", 1, 100))

	if len(fb.sentPhotos) != 1 {
		t.Fatalf("expected one photo, got %d", len(fb.sentPhotos))
	}

	photo := fb.sentPhotos[0]
	if chat, _ := photo.ChatID.(int64); chat != 100 {
		t.Fatalf("expected photo in chat 100, got %v", photo.ChatID)
	}

	upload, ok := photo.Photo.(*models.InputFileUpload)
	if !ok {
		t.Fatalf("expected InputFileUpload photo, got %T", photo.Photo)
	}
	if upload.Filename == "" || upload.Data == nil {
		t.Fatalf("expected named upload with data, got %+v", upload)
	}

	if !strings.Contains(photo.Caption, "UPI ID: <code>yourname@okaxis</code>") {
		t.Fatalf("caption missing UPI id: %q", photo.Caption)
	}
	if !strings.Contains(photo.Caption, "Amount: INR <code>149.99</code>") {
		t.Fatalf("caption missing amount: %q", photo.Caption)
	}
}

func TestHandleStartRegistersUserAndWelcomes(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	registrar := &fakeRegistrar{created: true}
	client.registrar = registrar
	client.logChannelID = -1001

	client.handleStart(context.Background(), nil, commandUpdate("/start", 42, 42))

	if registrar.gotUserID != 42 {
		t.Fatalf("expected registrar called with user 42, got %d", registrar.gotUserID)
	}
	if registrar.gotName != "Asha" {
		t.Fatalf("expected display name Asha, got %q", registrar.gotName)
	}

	if len(fb.sentMessages) != 2 {
		t.Fatalf("expected log-channel notice plus welcome, got %d messages", len(fb.sentMessages))
	}

	notice := fb.sentMessages[0]
	if chat, _ := notice.ChatID.(int64); chat != -1001 {
		t.Fatalf("expected first message in log channel, got %v", notice.ChatID)
	}
	if !strings.Contains(notice.Text, "New user") {
		t.Fatalf("unexpected log channel text: %q", notice.Text)
	}

	welcome := fb.sentMessages[1]
	if !strings.Contains(welcome.Text, "/qr") {
		t.Fatalf("welcome should mention /qr usage: %q", welcome.Text)
	}

	markup, ok := welcome.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) == 0 || len(markup.InlineKeyboard[0]) == 0 {
		t.Fatalf("expected inline keyboard on welcome, got %+v", welcome.ReplyMarkup)
	}
	if markup.InlineKeyboard[0][0].CallbackData != callbackHelp {
		t.Fatalf("expected help callback button, got %+v", markup.InlineKeyboard[0][0])
	}
}

func TestHandleStartExistingUserSkipsLogChannel(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	client.registrar = &fakeRegistrar{created: false}
	client.logChannelID = -1001

	client.handleStart(context.Background(), nil, commandUpdate("/start", 42, 42))

	if len(fb.sentMessages) != 1 {
		t.Fatalf("expected only the welcome message, got %d", len(fb.sentMessages))
	}
}

func TestHandleHelpCallbackAnswersAndSendsHelp(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)

	update := &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: 5},
			Message: models.MaybeInaccessibleMessage{
				Type: models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{
					Chat: models.Chat{ID: 55},
				},
			},
		},
	}

	client.handleHelpCallback(context.Background(), nil, update)

	if len(fb.answered) != 1 || fb.answered[0].CallbackQueryID != "cb-1" {
		t.Fatalf("expected callback query answered, got %+v", fb.answered)
	}

	if got := lastMessageText(t, fb); !strings.Contains(got, "/qr") {
		t.Fatalf("expected help text, got %q", got)
	}
}

func TestHandleStatusEditsProbeMessage(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	client.processStart = time.Now().Add(-time.Minute)

	client.handleStatus(context.Background(), nil, commandUpdate("/status", 1, 100))

	if len(fb.sentMessages) != 1 {
		t.Fatalf("expected one probe message, got %d", len(fb.sentMessages))
	}
	if len(fb.edits) != 1 {
		t.Fatalf("expected one edit, got %d", len(fb.edits))
	}

	edit := fb.edits[0]
	if edit.MessageID != 1 {
		t.Fatalf("expected edit of probe message 1, got %d", edit.MessageID)
	}
	if !strings.Contains(edit.Text, "Uptime:") || !strings.Contains(edit.Text, "Latency:") {
		t.Fatalf("unexpected status text: %q", edit.Text)
	}
}

func TestHandleUsersRequiresOwner(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	client.ownerID = 7
	client.stats = fakeStats{count: 12}

	client.handleUsers(context.Background(), nil, commandUpdate("/users", 8, 100))

	if got := lastMessageText(t, fb); got != ownerOnlyText {
		t.Fatalf("expected owner-only refusal, got %q", got)
	}
}

func TestHandleUsersReportsCount(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	client.ownerID = 7
	client.stats = fakeStats{count: 12}

	client.handleUsers(context.Background(), nil, commandUpdate("/users", 7, 100))

	if got := lastMessageText(t, fb); !strings.Contains(got, "12") {
		t.Fatalf("expected user count in reply, got %q", got)
	}
}

func TestHandleBroadcastRequiresReply(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	client.ownerID = 7
	client.users = fakeLister{ids: []int64{1}}

	client.handleBroadcast(context.Background(), nil, commandUpdate("/broadcast", 7, 100))

	if got := lastMessageText(t, fb); got != broadcastNeedsReplyText {
		t.Fatalf("expected reply-required message, got %q", got)
	}
	if len(fb.copies) != 0 {
		t.Fatalf("expected no deliveries without a reply, got %d", len(fb.copies))
	}
}

func TestHandleBroadcastCopiesAndTallies(t *testing.T) {
	fb := &fakeBot{
		copyErr: func(targetID int64) error {
			switch targetID {
			case 2:
				return errors.New("Forbidden: bot was blocked by the user")
			case 3:
				return errors.New("Forbidden: user is deactivated")
			case 4:
				return errors.New("network timeout")
			default:
				return nil
			}
		},
	}
	client := newTestClient(fb)
	client.ownerID = 7
	client.users = fakeLister{ids: []int64{1, 2, 3, 4}}

	update := commandUpdate("/broadcast", 7, 100)
	update.Message.ReplyToMessage = &models.Message{ID: 900, Chat: models.Chat{ID: 100}}

	client.handleBroadcast(context.Background(), nil, update)

	if len(fb.copies) != 1 {
		t.Fatalf("expected one successful copy, got %d", len(fb.copies))
	}
	copied := fb.copies[0]
	if copied.MessageID != 900 {
		t.Fatalf("expected replied-to message 900 to be copied, got %d", copied.MessageID)
	}
	if from, _ := copied.FromChatID.(int64); from != 100 {
		t.Fatalf("expected copy from chat 100, got %v", copied.FromChatID)
	}

	if len(fb.edits) == 0 {
		t.Fatalf("expected final status edit")
	}
	final := fb.edits[len(fb.edits)-1].Text
	for _, want := range []string{
		"Broadcast complete",
		"Total: 4",
		"Successful: 1",
		"Blocked: 1",
		"Deleted accounts: 1",
		"Unsuccessful: 1",
	} {
		if !strings.Contains(final, want) {
			t.Fatalf("final status missing %q: %q", want, final)
		}
	}
}

func TestHandleBroadcastRequiresOwner(t *testing.T) {
	fb := &fakeBot{}
	client := newTestClient(fb)
	client.ownerID = 7
	client.users = fakeLister{ids: []int64{1}}

	update := commandUpdate("/broadcast", 8, 100)
	update.Message.ReplyToMessage = &models.Message{ID: 900}

	client.handleBroadcast(context.Background(), nil, update)

	if got := lastMessageText(t, fb); got != ownerOnlyText {
		t.Fatalf("expected owner-only refusal, got %q", got)
	}
	if len(fb.copies) != 0 {
		t.Fatalf("expected no deliveries for non-owner, got %d", len(fb.copies))
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		want string
	}{
		{name: "first and last", user: &models.User{FirstName: "Asha", LastName: "Rao"}, want: "Asha Rao"},
		{name: "first only", user: &models.User{FirstName: "Asha"}, want: "Asha"},
		{name: "username fallback", user: &models.User{Username: "asha_r"}, want: "asha_r"},
		{name: "nil user", user: nil, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(tt.user); got != tt.want {
				t.Fatalf("displayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeHTML(t *testing.T) {
	if got := escapeHTML(`<b>&"name"</b>`); got != `&lt;b&gt;&amp;"name"&lt;/b&gt;` {
		t.Fatalf("escapeHTML() = %q", got)
	}
}
