package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/infra/adapter/persistence/postgres"
)

/* ──────────────────────────────── helpers ──────────────────────────────── */

var channelCols = []string{
	"id", "organization_id", "platform", "name", "channel_identifier",
	"workspace_connection_id", "notification_language", "is_active",
	"created_at", "updated_at",
}

func channelRows(chs ...*entity.NotificationChannel) *sqlmock.Rows {
	rows := sqlmock.NewRows(channelCols)
	for _, ch := range chs {
		var conn any
		if ch.WorkspaceConnectionID != nil {
			conn = *ch.WorkspaceConnectionID
		}
		rows.AddRow(ch.ID, ch.OrganizationID, string(ch.Platform), ch.Name, ch.ChannelIdentifier,
			conn, ch.NotificationLanguage, ch.IsActive, ch.CreatedAt, ch.UpdatedAt)
	}
	return rows
}

func fixtureChannels() (*entity.NotificationChannel, *entity.NotificationChannel) {
	ts := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	conn := "wc-1"
	slack := &entity.NotificationChannel{
		ID: "ch-slack", OrganizationID: "org-1", Platform: entity.PlatformSlack, Name: "#news",
		ChannelIdentifier: "C0123", WorkspaceConnectionID: &conn, NotificationLanguage: "ja",
		IsActive: true, CreatedAt: ts, UpdatedAt: ts,
	}
	discord := &entity.NotificationChannel{
		ID: "ch-discord", OrganizationID: "org-1", Platform: entity.PlatformDiscord, Name: "feed",
		ChannelIdentifier: "99887766", NotificationLanguage: "en",
		IsActive: true, CreatedAt: ts, UpdatedAt: ts,
	}
	return slack, discord
}

/* ──────────────────────────────── 1. Get ──────────────────────────────── */

func TestChannelRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want, _ := fixtureChannels()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM notification_channels c
WHERE c.id = $1`)).
		WithArgs("ch-slack").
		WillReturnRows(channelRows(want))

	got, err := postgres.NewChannelRepo(db).Get(context.Background(), "ch-slack")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestChannelRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM notification_channels c`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(channelCols))

	got, err := postgres.NewChannelRepo(db).Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", got, err)
	}
}

/* ──────────────────────────────── 2. ListActive ──────────────────────────────── */

func TestChannelRepo_ListActive(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	slack, discord := fixtureChannels()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE c.is_active = TRUE`)).
		WillReturnRows(channelRows(slack, discord))

	got, err := postgres.NewChannelRepo(db).ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive err=%v", err)
	}
	if diff := cmp.Diff([]*entity.NotificationChannel{slack, discord}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

/* ──────────────────────────────── 3. ListActiveForFeed ──────────────────────────────── */

func TestChannelRepo_ListActiveForFeed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	_, discord := fixtureChannels()
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN channel_feeds cf ON cf.channel_id = c.id
WHERE cf.feed_id = $1`)).
		WithArgs("feed-1").
		WillReturnRows(channelRows(discord))

	got, err := postgres.NewChannelRepo(db).ListActiveForFeed(context.Background(), "feed-1")
	if err != nil || len(got) != 1 || got[0].ID != "ch-discord" {
		t.Fatalf("ListActiveForFeed got=%v err=%v", got, err)
	}
	if got[0].WorkspaceConnectionID != nil {
		t.Fatalf("expected nil workspace connection, got %v", *got[0].WorkspaceConnectionID)
	}
}

/* ──────────────────────────────── 4. ListActiveForArticle ──────────────────────────────── */

func TestChannelRepo_ListActiveForArticle(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	slack, discord := fixtureChannels()
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN articles a ON a.feed_id = cf.feed_id
WHERE a.id = $1`)).
		WithArgs("art-1").
		WillReturnRows(channelRows(slack, discord))

	got, err := postgres.NewChannelRepo(db).ListActiveForArticle(context.Background(), "art-1")
	if err != nil || len(got) != 2 {
		t.Fatalf("ListActiveForArticle len=%d err=%v", len(got), err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestChannelRepo_ListActiveForArticle_QueryError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	dbErr := errors.New("connection reset")
	mock.ExpectQuery(`FROM notification_channels c`).WithArgs("art-1").WillReturnError(dbErr)

	_, err := postgres.NewChannelRepo(db).ListActiveForArticle(context.Background(), "art-1")
	if !errors.Is(err, dbErr) {
		t.Fatalf("want wrapped %v, got %v", dbErr, err)
	}
}
