package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/internal/repository"
	"github.com/noah-isme/applets-core/pkg/config"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/jobs"
	"github.com/noah-isme/applets-core/pkg/secure"
)

const reencryptPrime = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

const (
	reencryptUser  = "user-1"
	reencryptEmail = "ada@example.com"
	oldPassword    = "old-password"
	newPassword    = "new-password"
)

type stubLocker struct {
	held     bool
	err      error
	names    []string
	released int
}

func (l *stubLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	l.names = append(l.names, name)
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.held = false
		l.released++
	}, true, nil
}

type stubAppletLister struct {
	ids []string
	err error
}

func (s *stubAppletLister) AppletIDsForRespondent(ctx context.Context, userID string) ([]string, error) {
	return s.ids, s.err
}

type stubAppletReader map[string]*models.Applet

func (s stubAppletReader) GetForAudit(ctx context.Context, id string) (*models.Applet, error) {
	applet, ok := s[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "applet not found")
	}
	return applet, nil
}

type memoryCiphers struct {
	mu          sync.Mutex
	rows        map[string][]models.CipherRow
	batches     int
	failUpdates int
	failReads   int
}

func (m *memoryCiphers) NextCipherBatch(ctx context.Context, respondentID, appletID string, after repository.CipherCursor, limit int) ([]models.CipherRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads > 0 {
		m.failReads--
		return nil, errors.New("connection reset")
	}
	m.batches++
	var out []models.CipherRow
	for _, row := range m.rows[appletID] {
		if row.CreatedAt.Before(after.CreatedAt) || (row.CreatedAt.Equal(after.CreatedAt) && row.ID <= after.ID) {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryCiphers) UpdateCiphers(ctx context.Context, rows []models.CipherRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates > 0 {
		m.failUpdates--
		return errors.New("deadlock detected")
	}
	for _, updated := range rows {
		for appletID, stored := range m.rows {
			for i := range stored {
				if stored[i].ID == updated.ID {
					m.rows[appletID][i] = updated
				}
			}
		}
	}
	return nil
}

type recordingReencryptionMetrics struct {
	outcomes []string
	rows     int
}

func (m *recordingReencryptionMetrics) RecordReencryption(outcome string, rows int) {
	m.outcomes = append(m.outcomes, outcome)
	m.rows += rows
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func testDHParams(t *testing.T, seed byte) secure.DHParams {
	t.Helper()
	prime, err := hex.DecodeString(reencryptPrime)
	require.NoError(t, err)
	params := secure.DHParams{Prime: prime, Base: []byte{2}}
	params.PublicKey = secure.PublicKey(new(big.Int).SetBytes(bytes.Repeat([]byte{seed}, 64)), params)
	return params
}

func encryptedApplet(id string, params secure.DHParams) *models.Applet {
	return &models.Applet{ID: id, Encryption: &models.AppletEncryption{
		Prime:     params.Prime,
		Base:      params.Base,
		PublicKey: params.PublicKey,
		AccountID: "account-1",
	}}
}

func sealedRows(t *testing.T, params secure.DHParams, password, prefix string, n int) []models.CipherRow {
	t.Helper()
	priv := secure.PrivateKey(reencryptUser, reencryptEmail, password)
	key, err := secure.SharedKey(priv, params)
	require.NoError(t, err)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := make([]models.CipherRow, 0, n)
	for i := 0; i < n; i++ {
		answer, err := secure.Seal(key, []byte(fmt.Sprintf(`{"value":%d}`, i)))
		require.NoError(t, err)
		identifier, err := secure.Seal(key, []byte("subject-"+prefix))
		require.NoError(t, err)
		rows = append(rows, models.CipherRow{
			ID:            fmt.Sprintf("%s-%02d", prefix, i),
			Answer:        answer,
			Identifier:    &identifier,
			UserPublicKey: secure.PublicKeyBase64(priv, params),
			CreatedAt:     base.Add(time.Duration(i/2) * time.Minute),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows
}

func openRow(t *testing.T, params secure.DHParams, password string, row models.CipherRow) string {
	t.Helper()
	key, err := secure.SharedKey(secure.PrivateKey(reencryptUser, reencryptEmail, password), params)
	require.NoError(t, err)
	plain, err := secure.Open(key, row.Answer)
	require.NoError(t, err)
	return string(plain)
}

type reencryptFixture struct {
	svc     *ReencryptionService
	locker  *stubLocker
	access  *stubAppletLister
	applets stubAppletReader
	ciphers *memoryCiphers
	bus     *recordingPublisher
	metrics *recordingReencryptionMetrics
	params  secure.DHParams
}

func newReencryptFixture(t *testing.T, opts ...ReencryptionServiceOption) *reencryptFixture {
	t.Helper()
	params := testDHParams(t, 0x5a)
	f := &reencryptFixture{
		locker:  &stubLocker{},
		access:  &stubAppletLister{ids: []string{"applet-a", "applet-b"}},
		applets: stubAppletReader{"applet-a": encryptedApplet("applet-a", params), "applet-b": encryptedApplet("applet-b", params)},
		ciphers: &memoryCiphers{rows: map[string][]models.CipherRow{
			"applet-a": sealedRows(t, params, oldPassword, "a", 7),
			"applet-b": sealedRows(t, params, oldPassword, "b", 2),
		}},
		bus:     &recordingPublisher{},
		metrics: &recordingReencryptionMetrics{},
		params:  params,
	}
	base := []ReencryptionServiceOption{
		WithCipherStoreFactory(func(db *sqlx.DB) cipherStore { return f.ciphers }),
		WithReencryptionPublisher(f.bus),
		WithReencryptionMetrics(f.metrics),
		WithReencryptionRetryDelay(0),
	}
	f.svc = NewReencryptionService(f.locker, f.access, f.applets, &staticRouter{route: &Route{}},
		config.ReencryptionConfig{BatchSize: 3, MaxRetries: 2, Concurrency: 1}, nil, append(base, opts...)...)
	return f
}

func TestReencryptionRunResealsEveryRow(t *testing.T) {
	f := newReencryptFixture(t)

	report, err := f.svc.Run(context.Background(), NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword))
	require.NoError(t, err)
	assert.Equal(t, 9, report.Reencrypted)
	assert.Empty(t, report.FailedApplets)

	newPublic := secure.PublicKeyBase64(secure.PrivateKey(reencryptUser, reencryptEmail, newPassword), f.params)
	for _, rows := range f.ciphers.rows {
		for _, row := range rows {
			assert.Equal(t, newPublic, row.UserPublicKey)
			assert.Contains(t, openRow(t, f.params, newPassword, row), `"value"`)
		}
	}
	assert.Equal(t, `{"value":0}`, openRow(t, f.params, newPassword, f.ciphers.rows["applet-a"][0]))

	// applet-a: 3+3+1 rows, applet-b: 2 rows.
	assert.Equal(t, 4, f.ciphers.batches)
	require.Len(t, f.bus.events, 1)
	assert.Equal(t, models.TopicReencryptionCompleted, f.bus.events[0].topic)
	assert.Equal(t, []string{"completed", "completed"}, f.metrics.outcomes)
}

func TestReencryptionRunIsResumable(t *testing.T) {
	f := newReencryptFixture(t)
	job := NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword)

	_, err := f.svc.Run(context.Background(), job)
	require.NoError(t, err)
	report, err := f.svc.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Zero(t, report.Reencrypted)
	assert.Equal(t, `{"value":6}`, openRow(t, f.params, newPassword, f.ciphers.rows["applet-a"][6]))
}

func TestReencryptionRetriesBatches(t *testing.T) {
	f := newReencryptFixture(t)
	f.ciphers.failReads = 1
	f.ciphers.failUpdates = 1

	report, err := f.svc.Run(context.Background(), NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword))
	require.NoError(t, err)
	assert.Equal(t, 9, report.Reencrypted)
	assert.Empty(t, report.FailedApplets)
}

func TestReencryptionReportsFailedAppletsAndContinues(t *testing.T) {
	f := newReencryptFixture(t)
	f.ciphers.rows["applet-a"][1].Answer = "not-a-ciphertext"

	report, err := f.svc.Run(context.Background(), NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword))
	require.NoError(t, err)
	assert.Equal(t, []string{"applet-a"}, report.FailedApplets)
	assert.Equal(t, 2, report.Reencrypted)

	require.Len(t, f.bus.events, 2)
	assert.Equal(t, models.TopicReencryptionAppletFailed, f.bus.events[0].topic)
	failed := f.bus.events[0].payload.(models.ReencryptionFailedEvent)
	assert.Equal(t, "applet-a", failed.AppletID)
	assert.Equal(t, "stored answer could not be decrypted", failed.Reason)
	assert.Equal(t, models.TopicReencryptionCompleted, f.bus.events[1].topic)
	assert.ElementsMatch(t, []string{"failed", "completed"}, f.metrics.outcomes)
}

func TestReencryptionSkipsAppletsWithoutEncryption(t *testing.T) {
	f := newReencryptFixture(t)
	f.applets["applet-b"].Encryption = nil

	report, err := f.svc.Run(context.Background(), NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword))
	require.NoError(t, err)
	assert.Equal(t, 7, report.Reencrypted)
	assert.Equal(t, `{"value":0}`, openRow(t, f.params, oldPassword, f.ciphers.rows["applet-b"][0]))
}

func TestReencryptionIncludesDeletedApplets(t *testing.T) {
	f := newReencryptFixture(t)
	f.applets["applet-b"].IsDeleted = true
	f.access.ids = append(f.access.ids, "applet-purged")

	report, err := f.svc.Run(context.Background(), NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword))
	require.NoError(t, err)
	assert.Equal(t, 9, report.Reencrypted)
	assert.Empty(t, report.FailedApplets)
	assert.Equal(t, `{"value":1}`, openRow(t, f.params, newPassword, f.ciphers.rows["applet-b"][1]))
}

func TestReencryptionAcquireBlocksConcurrentJobs(t *testing.T) {
	f := newReencryptFixture(t)

	lease, err := f.svc.Acquire(context.Background(), reencryptUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"reencrypt:user-1"}, f.locker.names)

	_, err = f.svc.Acquire(context.Background(), reencryptUser)
	assert.ErrorIs(t, err, appErrors.ErrReencryptionInProgress)

	lease.Release()
	lease.Release()
	assert.Equal(t, 1, f.locker.released)

	_, err = f.svc.Acquire(context.Background(), reencryptUser)
	assert.NoError(t, err)
}

func TestReencryptionScheduleInlineReleasesLease(t *testing.T) {
	f := newReencryptFixture(t)
	job := NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword)

	lease, err := f.svc.Acquire(context.Background(), reencryptUser)
	require.NoError(t, err)
	require.NoError(t, f.svc.Schedule(context.Background(), lease, job))
	assert.False(t, f.locker.held)
	assert.Equal(t, 1, f.locker.released)
	assert.Len(t, f.bus.events, 1)
}

func TestReencryptionScheduleOnQueue(t *testing.T) {
	queue := &recordingQueue{}
	f := newReencryptFixture(t, WithReencryptionQueue(queue))
	job := NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword)

	lease, err := f.svc.Acquire(context.Background(), reencryptUser)
	require.NoError(t, err)
	require.NoError(t, f.svc.Schedule(context.Background(), lease, job))
	require.Len(t, queue.jobs, 1)
	assert.True(t, f.locker.held)

	require.NoError(t, f.svc.Handle(context.Background(), queue.jobs[0]))
	assert.False(t, f.locker.held)
	assert.Equal(t, 9, f.metrics.rows)
}

func TestReencryptionScheduleReleasesOnEnqueueFailure(t *testing.T) {
	f := newReencryptFixture(t, WithReencryptionQueue(&recordingQueue{err: errors.New("queue stopped")}))

	lease, err := f.svc.Acquire(context.Background(), reencryptUser)
	require.NoError(t, err)
	err = f.svc.Schedule(context.Background(), lease, NewReencryptionJob(reencryptUser, reencryptEmail, oldPassword, newPassword))
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.False(t, f.locker.held)
}

func TestReencryptionHandleRejectsUnknownPayload(t *testing.T) {
	f := newReencryptFixture(t)
	assert.Error(t, f.svc.Handle(context.Background(), jobs.Job{Payload: "nope"}))
}
