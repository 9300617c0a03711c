package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

func newTestBroadcastWorker(db *gorm.DB, mail *fakeTransport) *BroadcastWorker {
	sender := utils.NewBroadcastSender(db, mail, "https://emberline.shop", []byte("test-key"))
	return NewBroadcastWorker(db, sender, quietLogger(), time.Minute)
}

func TestBroadcastSweepSendsDueScheduled(t *testing.T) {
	db := setupWorkerDB(t)
	require.NoError(t, db.Create(&models.Subscriber{Email: "a@example.com", Subscribed: true}).Error)

	due := time.Now().Add(-time.Minute)
	broadcast := models.Broadcast{
		Subject:     "s",
		Body:        "<p>hi</p>",
		Status:      models.BroadcastStatusScheduled,
		ScheduledAt: &due,
	}
	require.NoError(t, db.Create(&broadcast).Error)

	mail := &fakeTransport{}
	require.NoError(t, newTestBroadcastWorker(db, mail).Sweep())

	assert.Equal(t, []string{"a@example.com"}, mail.sent)

	var reloaded models.Broadcast
	require.NoError(t, db.First(&reloaded, broadcast.ID).Error)
	assert.Equal(t, models.BroadcastStatusSent, reloaded.Status)
}

func TestBroadcastSweepReleasesClaimOnSendError(t *testing.T) {
	db := setupWorkerDB(t)
	require.NoError(t, db.Create(&models.Subscriber{Email: "a@example.com", Subscribed: true}).Error)

	due := time.Now().Add(-time.Minute)
	broadcast := models.Broadcast{
		Subject:     "s",
		Body:        "<p>hi</p>",
		Status:      models.BroadcastStatusScheduled,
		ScheduledAt: &due,
	}
	require.NoError(t, db.Create(&broadcast).Error)

	// Make the snapshot insert fail so Send errors after the claim.
	require.NoError(t, db.Migrator().DropTable(&models.SentBroadcast{}))

	mail := &fakeTransport{}
	worker := newTestBroadcastWorker(db, mail)
	require.NoError(t, worker.Sweep())

	assert.Empty(t, mail.sent)

	// The broadcast must not stay wedged in "sending".
	var reloaded models.Broadcast
	require.NoError(t, db.First(&reloaded, broadcast.ID).Error)
	assert.Equal(t, models.BroadcastStatusFailed, reloaded.Status)

	// Once the store recovers a re-send goes through.
	require.NoError(t, db.AutoMigrate(&models.SentBroadcast{}))
	require.NoError(t, db.Model(&reloaded).Updates(map[string]interface{}{
		"status":       models.BroadcastStatusScheduled,
		"scheduled_at": due,
	}).Error)
	require.NoError(t, worker.Sweep())

	assert.Equal(t, []string{"a@example.com"}, mail.sent)
}
