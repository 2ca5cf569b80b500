package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit-dev/trace-relay/pkg/database"
	"github.com/tracekit-dev/trace-relay/pkg/database/migrations"
	"github.com/tracekit-dev/trace-relay/pkg/database/uow"
	"github.com/tracekit-dev/trace-relay/pkg/messaging"
	"github.com/tracekit-dev/trace-relay/pkg/migration"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/observability/fake"
	"github.com/tracekit-dev/trace-relay/pkg/users"
)

type published struct {
	topic   string
	key     string
	headers map[string]string
	body    []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	err  error
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, headers map[string]string, m *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, headers: headers, body: m.Body})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingSnapshotter struct {
	labels []string
	vars   []map[string]any
}

func (s *recordingSnapshotter) Capture(_ context.Context, label string, vars map[string]any) {
	s.labels = append(s.labels, label)
	s.vars = append(s.vars, vars)
}

type uowFunc func(ctx context.Context) error

func (f uowFunc) Do(ctx context.Context, _ func(ctx context.Context, tx database.DBTX) error) error {
	return f(ctx)
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func setup(t *testing.T, opts ...Option) (*Service, *sql.DB, *fake.Provider) {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "payment.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migration.New(db,
		migration.WithDriver(migration.DriverSQLite3),
		migration.WithSource(migrations.FS, migrations.Dir("sqlite3")),
		migration.WithLogger(fake.NewLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Close())

	unit, err := uow.New(db)
	require.NoError(t, err)

	o11y := fake.NewProvider()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := NewService(o11y, unit, opts...)
	require.NoError(t, err)
	return svc, db, o11y
}

func totalSpent(t *testing.T, db *sql.DB, id int64) float64 {
	t.Helper()
	u, err := users.NewRepository(db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return u.TotalSpent
}

func countPayments(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM payments").Scan(&n))
	return n
}

func TestProcessCompletesPayment(t *testing.T) {
	pub := &recordingPublisher{}
	snaps := &recordingSnapshotter{}
	svc, db, o11y := setup(t, WithPublisher(pub, "payments"), WithSnapshotter(snaps))

	p, err := svc.Process(context.Background(), 123, 99.99)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.ID, "pay_"), p.ID)
	assert.Equal(t, int64(123), p.UserID)
	assert.Equal(t, 99.99, p.Amount)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, fixedNow, p.CreatedAt)

	assert.InDelta(t, 99.99, totalSpent(t, db, 123), 1e-9)
	assert.Equal(t, 1, countPayments(t, db))

	assert.Equal(t, []string{"payment-processing"}, snaps.labels)
	assert.Equal(t, map[string]any{"user_id": int64(123), "amount": 99.99}, snaps.vars[0])

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	assert.Equal(t, "payments", msg.topic)
	assert.Equal(t, p.ID, msg.key)
	assert.Equal(t, EventCompleted, msg.headers["event_type"])

	var event map[string]any
	require.NoError(t, json.Unmarshal(msg.body, &event))
	assert.Equal(t, EventCompleted, event["event"])
	assert.Equal(t, p.ID, event["payment_id"])
	assert.Equal(t, "completed", event["status"])

	spans := o11y.FakeTracer().SpansNamed("payment.process")
	require.Len(t, spans, 1)
	id, _ := spans[0].Attribute("payment.id")
	assert.Equal(t, p.ID, id)

	counter := o11y.FakeMetrics().GetCounter("payment.processed")
	require.NotNil(t, counter)
	values := counter.GetValues()
	require.Len(t, values, 1)
	res, _ := observability.FieldValue(values[0].Fields, "result")
	assert.Equal(t, "completed", res)
}

func TestProcessGeneratesDistinctIDs(t *testing.T) {
	svc, db, _ := setup(t)

	a, err := svc.Process(context.Background(), 1, 10)
	require.NoError(t, err)
	b, err := svc.Process(context.Background(), 1, 15)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.InDelta(t, 25, totalSpent(t, db, 1), 1e-9)
	assert.Equal(t, 2, countPayments(t, db))
}

func TestProcessRejects(t *testing.T) {
	tests := []struct {
		name    string
		userID  int64
		amount  float64
		wantErr error
		result  string
	}{
		{name: "amount over limit", userID: 123, amount: 1000.01, wantErr: ErrAmountExceedsLimit, result: "rejected"},
		{name: "zero amount", userID: 123, amount: 0, wantErr: ErrInvalidAmount, result: "rejected"},
		{name: "unknown user", userID: 424242, amount: 10, wantErr: users.ErrNotFound, result: "unknown_user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc, db, o11y := setup(t, WithPublisher(pub, "payments"))

			_, err := svc.Process(context.Background(), tt.userID, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Zero(t, countPayments(t, db))
			assert.Empty(t, pub.sent)

			spans := o11y.FakeTracer().SpansNamed("payment.process")
			require.Len(t, spans, 1)
			assert.Equal(t, observability.StatusCodeError, spans[0].Status)

			values := o11y.FakeMetrics().GetCounter("payment.processed").GetValues()
			require.Len(t, values, 1)
			res, _ := observability.FieldValue(values[0].Fields, "result")
			assert.Equal(t, tt.result, res)
		})
	}
}

func TestProcessExactlyAtLimit(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Process(context.Background(), 123, MaxAmount)
	assert.NoError(t, err)
}

func TestPublishFailureDoesNotFailPayment(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, db, o11y := setup(t, WithPublisher(pub, "payments"))

	_, err := svc.Process(context.Background(), 123, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, countPayments(t, db))
	assert.Len(t, o11y.FakeLogger().EntriesWithMessage("failed to publish payment event"), 1)
}

func TestNewServiceValidation(t *testing.T) {
	unit := uowFunc(func(context.Context) error { return nil })

	_, err := NewService(nil, unit)
	assert.Error(t, err)

	_, err = NewService(fake.NewProvider(), nil)
	assert.Error(t, err)

	_, err = NewService(fake.NewProvider(), unit, WithPublisher(&recordingPublisher{}, ""))
	assert.Error(t, err)
}
