package worker

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"emberline/models"
)

func setupWorkerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Automation{},
		&models.AutomationStep{},
		&models.QueueEntry{},
		&models.AbandonedCart{},
		&models.AbandonedCartItem{},
		&models.Broadcast{},
		&models.SentBroadcast{},
		&models.Subscriber{},
	))
	return db
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeTransport records sends and fails configured addresses.
type fakeTransport struct {
	sent []string
	fail map[string]bool
}

func (f *fakeTransport) Send(to, subject, html string) error {
	if f.fail[to] {
		return fmt.Errorf("smtp timeout")
	}
	f.sent = append(f.sent, to)
	return nil
}

func newTestQueueWorker(db *gorm.DB, mail *fakeTransport) *QueueWorker {
	return NewQueueWorker(db, mail, quietLogger(), time.Minute)
}

func TestQueueSweepSendsDueEntries(t *testing.T) {
	db := setupWorkerDB(t)
	require.NoError(t, db.Create(&models.QueueEntry{
		AutomationName: "Welcome",
		StepID:         models.FlatStepID,
		Email:          "a@example.com",
		Subject:        "hi",
		Body:           "hello",
		Status:         models.QueueStatusScheduled,
		ScheduledFor:   time.Now().Add(-time.Minute),
	}).Error)

	mail := &fakeTransport{}
	require.NoError(t, newTestQueueWorker(db, mail).Sweep())

	assert.Equal(t, []string{"a@example.com"}, mail.sent)

	var entry models.QueueEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, models.QueueStatusSent, entry.Status)
	require.NotNil(t, entry.SentAt)
	assert.Empty(t, entry.LastError)
}

func TestQueueSweepLeavesFutureEntries(t *testing.T) {
	db := setupWorkerDB(t)
	require.NoError(t, db.Create(&models.QueueEntry{
		Email:        "later@example.com",
		Subject:      "s",
		Body:         "b",
		Status:       models.QueueStatusScheduled,
		ScheduledFor: time.Now().Add(time.Hour),
	}).Error)

	mail := &fakeTransport{}
	require.NoError(t, newTestQueueWorker(db, mail).Sweep())

	assert.Empty(t, mail.sent)

	var entry models.QueueEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, models.QueueStatusScheduled, entry.Status)
}

func TestQueueSweepMarksFailureAndCarriesOn(t *testing.T) {
	db := setupWorkerDB(t)
	for _, email := range []string{"bad@example.com", "good@example.com"} {
		require.NoError(t, db.Create(&models.QueueEntry{
			Email:        email,
			Subject:      "s",
			Body:         "b",
			Status:       models.QueueStatusScheduled,
			ScheduledFor: time.Now().Add(-time.Minute),
		}).Error)
	}

	mail := &fakeTransport{fail: map[string]bool{"bad@example.com": true}}
	require.NoError(t, newTestQueueWorker(db, mail).Sweep())

	// The failure didn't stop the sweep from delivering the rest.
	assert.Equal(t, []string{"good@example.com"}, mail.sent)

	var failed models.QueueEntry
	require.NoError(t, db.Where("email = ?", "bad@example.com").First(&failed).Error)
	assert.Equal(t, models.QueueStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.LastError)
	assert.Nil(t, failed.SentAt)
}

func TestQueueSweepIsIdempotent(t *testing.T) {
	db := setupWorkerDB(t)
	require.NoError(t, db.Create(&models.QueueEntry{
		Email:        "once@example.com",
		Subject:      "s",
		Body:         "b",
		Status:       models.QueueStatusScheduled,
		ScheduledFor: time.Now().Add(-time.Minute),
	}).Error)

	mail := &fakeTransport{}
	worker := newTestQueueWorker(db, mail)
	require.NoError(t, worker.Sweep())
	require.NoError(t, worker.Sweep())

	// Sent entries are never re-selected.
	assert.Equal(t, []string{"once@example.com"}, mail.sent)
}

func TestQueueClaimBlocksConcurrentSweep(t *testing.T) {
	db := setupWorkerDB(t)
	entry := models.QueueEntry{
		Email:        "claimed@example.com",
		Subject:      "s",
		Body:         "b",
		Status:       models.QueueStatusScheduled,
		ScheduledFor: time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&entry).Error)

	// Simulate another sweep that claimed the row after our selection.
	require.NoError(t, db.Model(&models.QueueEntry{}).
		Where("id = ?", entry.ID).
		Update("status", models.QueueStatusSending).Error)

	mail := &fakeTransport{}
	worker := newTestQueueWorker(db, mail)
	worker.processEntry(&entry)

	assert.Empty(t, mail.sent)
}
