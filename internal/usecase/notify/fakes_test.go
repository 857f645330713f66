package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/infra/notifier"
	"osiri-dispatch/internal/repository"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

func slackChannel(id, orgID string) *entity.NotificationChannel {
	return &entity.NotificationChannel{
		ID:                    id,
		OrganizationID:        orgID,
		Platform:              entity.PlatformSlack,
		Name:                  "slack " + id,
		ChannelIdentifier:     "C-" + id,
		WorkspaceConnectionID: strPtr("wc-1"),
		NotificationLanguage:  "en",
		IsActive:              true,
	}
}

func discordChannel(id, orgID string) *entity.NotificationChannel {
	return &entity.NotificationChannel{
		ID:                   id,
		OrganizationID:       orgID,
		Platform:             entity.PlatformDiscord,
		Name:                 "discord " + id,
		ChannelIdentifier:    "D-" + id,
		NotificationLanguage: "ja",
		IsActive:             true,
	}
}

func testPlatformConfig() PlatformConfig {
	return PlatformConfig{
		MaxConcurrent: 1,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		MaxBatchSize:  20,
	}
}

/* ───────── notification logs ───────── */

type memLogs struct {
	mu      sync.Mutex
	rows    []*entity.NotificationLog
	seq     int
	updates []repository.StatusUpdate

	successExistsErr error
	createErr        error
	updateErr        error
	pendingIDsErr    error
	creates          int

	// beforeClaim runs under the lock ahead of ClaimPending's status check.
	beforeClaim func(r *entity.NotificationLog)
}

func newMemLogs() *memLogs { return &memLogs{} }

func (m *memLogs) insertLocked(l *entity.NotificationLog) {
	m.seq++
	l.ID = fmt.Sprintf("log-%d", m.seq)
	l.CreatedAt = testNow
	l.UpdatedAt = testNow
	m.rows = append(m.rows, l)
}

// seed stores l as-is and returns it.
func (m *memLogs) seed(l *entity.NotificationLog) *entity.NotificationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(l)
	return l
}

func (m *memLogs) ArticleIDsWithLogs(_ context.Context, ids []string, ignoreFailed bool) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string]bool)
	for _, r := range m.rows {
		if !want[r.ArticleID] {
			continue
		}
		if ignoreFailed && r.Status == entity.LogFailed {
			continue
		}
		out[r.ArticleID] = true
	}
	return out, nil
}

func (m *memLogs) CreatePending(_ context.Context, logs []*entity.NotificationLog) ([]*entity.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range logs {
		m.insertLocked(l)
	}
	return logs, nil
}

func (m *memLogs) Create(_ context.Context, l *entity.NotificationLog) (repository.CreateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return repository.Created, m.createErr
	}
	for _, r := range m.rows {
		if r.ArticleID == l.ArticleID && r.ChannelID == l.ChannelID && r.Status == entity.LogSuccess {
			return repository.AlreadySucceeded, nil
		}
	}
	m.insertLocked(l)
	return repository.Created, nil
}

func (m *memLogs) SuccessExists(_ context.Context, articleID, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.successExistsErr != nil {
		return false, m.successExistsErr
	}
	for _, r := range m.rows {
		if r.ArticleID == articleID && r.ChannelID == channelID && r.Status == entity.LogSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLogs) ClaimPending(_ context.Context, u repository.StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return false, m.updateErr
	}
	for _, r := range m.rows {
		if r.ID != u.LogID {
			continue
		}
		if m.beforeClaim != nil {
			m.beforeClaim(r)
		}
		if r.Status != entity.LogPending {
			return false, nil
		}
		m.updates = append(m.updates, u)
		r.Status = entity.LogProcessing
		r.Recipient = u.Recipient
		return true, nil
	}
	return false, nil
}

func (m *memLogs) UpdateStatus(_ context.Context, u repository.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, u)
	for _, r := range m.rows {
		if r.ID != u.LogID {
			continue
		}
		r.Status = u.Status
		r.Recipient = u.Recipient
		r.ErrorMessage = nil
		if u.ErrorMessage != "" {
			r.ErrorMessage = strPtr(u.ErrorMessage)
		}
		if u.SentAt != nil {
			r.SentAt = u.SentAt
		}
		return nil
	}
	return entity.ErrNotFound
}

func (m *memLogs) ListPendingForArticle(_ context.Context, articleID string) (map[string]*entity.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*entity.NotificationLog)
	for _, r := range m.rows {
		if r.ArticleID == articleID && r.Status == entity.LogPending {
			out[r.ChannelID] = r
		}
	}
	return out, nil
}

func (m *memLogs) ListPendingArticleIDs(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingIDsErr != nil {
		return nil, m.pendingIDsErr
	}
	seen := make(map[string]bool)
	var ids []string
	for _, r := range m.rows {
		if r.Status != entity.LogPending || seen[r.ArticleID] {
			continue
		}
		seen[r.ArticleID] = true
		ids = append(ids, r.ArticleID)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memLogs) pendingRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Status == entity.LogPending {
			n++
		}
	}
	return n
}

// updatesWith counts status writes with the given status.
func (m *memLogs) updatesWith(status entity.LogStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.updates {
		if u.Status == status {
			n++
		}
	}
	return n
}

func (m *memLogs) successRows(articleID, channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.ArticleID == articleID && r.ChannelID == channelID && r.Status == entity.LogSuccess {
			n++
		}
	}
	return n
}

/* ───────── organizations ───────── */

type memOrgs struct {
	mu     sync.Mutex
	status map[string]*entity.OrganizationSubscriptionStatus

	getErr       error
	increments   int
	decrements   int
	noticeClaims int
}

func newMemOrgs() *memOrgs {
	return &memOrgs{status: make(map[string]*entity.OrganizationSubscriptionStatus)}
}

func (m *memOrgs) set(s *entity.OrganizationSubscriptionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[s.OrganizationID] = s
}

func (m *memOrgs) used(orgID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.status[orgID]; ok {
		return s.NotificationsUsedThisMonth
	}
	return 0
}

func (m *memOrgs) GetSubscriptionStatus(_ context.Context, orgID string) (*entity.OrganizationSubscriptionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.status[orgID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *memOrgs) IncrementNotificationCount(_ context.Context, orgID string, limit *int, now, dayStart time.Time) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[orgID]
	if !ok {
		return 0, false, nil
	}
	used := 0
	if s.NotificationsResetAt != nil && !s.NotificationsResetAt.Before(dayStart) {
		used = s.NotificationsUsedThisMonth
	}
	if limit != nil && used+1 > *limit {
		return used, false, nil
	}
	m.increments++
	s.NotificationsUsedThisMonth = used + 1
	s.NotificationsResetAt = timePtr(now)
	return s.NotificationsUsedThisMonth, true, nil
}

func (m *memOrgs) DecrementNotificationCount(_ context.Context, orgID string, dayStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrements++
	s, ok := m.status[orgID]
	if !ok || s.NotificationsResetAt == nil || s.NotificationsResetAt.Before(dayStart) {
		return nil
	}
	if s.NotificationsUsedThisMonth > 0 {
		s.NotificationsUsedThisMonth--
	}
	return nil
}

func (m *memOrgs) UpdateLimitNotification(_ context.Context, orgID string, now, dayStart time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[orgID]
	if !ok {
		return false, nil
	}
	if s.LastLimitNotificationAt != nil && !s.LastLimitNotificationAt.Before(dayStart) {
		return false, nil
	}
	m.noticeClaims++
	s.LastLimitNotificationAt = timePtr(now)
	return true, nil
}

/* ───────── senders ───────── */

type fakeSender struct {
	mu sync.Mutex

	// errs is consumed one entry per SendArticle call; once empty, alwaysErr applies.
	errs      []error
	alwaysErr error
	panicWith any
	limitErr  error

	articleCalls int
	limitCalls   int
	channels     []string
}

func (f *fakeSender) SendArticle(_ context.Context, _ *entity.NotificationLog, ch *entity.NotificationChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.articleCalls++
	f.channels = append(f.channels, ch.ID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.alwaysErr
}

func (f *fakeSender) SendLimitNotice(_ context.Context, _ *entity.NotificationChannel, _ *entity.OrganizationSubscriptionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitCalls++
	return f.limitErr
}

func (f *fakeSender) calls() (article, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.articleCalls, f.limitCalls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestProcessor(platform entity.Platform, cfg PlatformConfig, sender Sender, logs *memLogs, orgs *memOrgs) (*processor, *sleepRecorder) {
	guard := NewQuotaGuard(orgs, time.UTC)
	guard.now = fixedNow
	p := newProcessor(platform, cfg, sender, logs, guard)
	rec := &sleepRecorder{}
	p.sleep = rec.sleep
	p.now = fixedNow
	return p, rec
}

/* ───────── content, channels, providers ───────── */

type fakeContent struct {
	translations []*entity.Translation
	articles     map[string]*entity.Article
	listErr      error
}

func (f *fakeContent) ListRecentCompletedTranslations(_ context.Context, limit int) ([]*entity.Translation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.translations) > limit {
		return f.translations[:limit], nil
	}
	return f.translations, nil
}

func (f *fakeContent) GetCompletedTranslation(_ context.Context, articleID, lang string) (*entity.Translation, error) {
	for _, tr := range f.translations {
		if tr.ArticleID == articleID && tr.TargetLanguage == lang && tr.IsDeliverable() {
			return tr, nil
		}
	}
	return nil, nil
}

func (f *fakeContent) GetArticle(_ context.Context, id string) (*entity.Article, error) {
	return f.articles[id], nil
}

func completedTranslation(articleID, lang string) *entity.Translation {
	return &entity.Translation{
		ID:             "tr-" + articleID + "-" + lang,
		ArticleID:      articleID,
		TargetLanguage: lang,
		Title:          "Title " + articleID,
		Summary:        "Summary " + articleID,
		Status:         entity.TranslationCompleted,
		UpdatedAt:      testNow,
	}
}

type fakeChannels struct {
	byArticle map[string][]*entity.NotificationChannel
	byID      map[string]*entity.NotificationChannel
	listErr   error
}

func (f *fakeChannels) ListActive(context.Context) ([]*entity.NotificationChannel, error) {
	var out []*entity.NotificationChannel
	for _, ch := range f.byID {
		if ch.IsActive {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) Get(_ context.Context, id string) (*entity.NotificationChannel, error) {
	return f.byID[id], nil
}

func (f *fakeChannels) ListActiveForFeed(context.Context, string) ([]*entity.NotificationChannel, error) {
	return nil, nil
}

func (f *fakeChannels) ListActiveForArticle(_ context.Context, articleID string) ([]*entity.NotificationChannel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.byArticle[articleID], nil
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(context.Context, string) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeSlackPoster struct {
	mu     sync.Mutex
	err    error
	tokens []string
	msgs   []notifier.SlackMessage
}

func (f *fakeSlackPoster) PostMessage(_ context.Context, token string, msg notifier.SlackMessage) (*notifier.SlackPostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.msgs = append(f.msgs, msg)
	if f.err != nil {
		return nil, f.err
	}
	return &notifier.SlackPostResult{Channel: msg.Channel, TS: "1700000000.000100"}, nil
}

type fakeDiscordPoster struct {
	mu       sync.Mutex
	err      error
	channels []string
	msgs     []notifier.DiscordMessage
}

func (f *fakeDiscordPoster) CreateMessage(_ context.Context, channelID string, msg notifier.DiscordMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channelID)
	f.msgs = append(f.msgs, msg)
	return f.err
}
