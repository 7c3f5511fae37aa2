package service_test

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/contact"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/notification"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/repository/mysql"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/testutil"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) byType(typ string) []*notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for _, n := range f.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	db          *gorm.DB
	rec         *testutil.Recorder
	notifier    *fakeNotifier
	contactRepo contact.Repository
	contacts    *service.ContactService
	convs       *service.ConversationService
	messages    *service.MessageService
	presence    *service.PresenceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	rec := &testutil.Recorder{}
	notifier := &fakeNotifier{}

	users := mysql.NewUserRepository(db)
	contactRepo := mysql.NewContactRepository(db)
	convRepo := mysql.NewConversationRepository(db)
	msgRepo := mysql.NewMessageRepository(db)

	convs := service.NewConversationService(convRepo, contactRepo, users, msgRepo)
	return &fixture{
		db:          db,
		rec:         rec,
		notifier:    notifier,
		contactRepo: contactRepo,
		contacts:    service.NewContactService(contactRepo, users, notifier, rec),
		convs:       convs,
		messages:    service.NewMessageService(msgRepo, convRepo, convs, users, rec),
		presence:    service.NewPresenceService(users, contactRepo, rec),
	}
}

// connect 建立双向 CUSTOM 联系人边
func (f *fixture) connect(t *testing.T, a, b int64) {
	t.Helper()
	ctx := context.Background()
	if err := f.contactRepo.Upsert(ctx, a, b, contact.TypeCustom); err != nil {
		t.Fatalf("upsert %d->%d: %v", a, b, err)
	}
	if err := f.contactRepo.Upsert(ctx, b, a, contact.TypeCustom); err != nil {
		t.Fatalf("upsert %d->%d: %v", b, a, err)
	}
}

func expectKind(t *testing.T, err error, want service.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := service.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}
