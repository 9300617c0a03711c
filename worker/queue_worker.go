package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

// QueueWorker is the periodic queue sweep: it picks up due scheduled entries,
// claims them, and hands them to the mail transport.
type QueueWorker struct {
	DB       *gorm.DB
	Mail     utils.Transport
	Logger   *log.Logger
	Interval time.Duration
}

func NewQueueWorker(db *gorm.DB, mail utils.Transport, logger *log.Logger, interval time.Duration) *QueueWorker {
	return &QueueWorker{
		DB:       db,
		Mail:     mail,
		Logger:   logger,
		Interval: interval,
	}
}

func (qw *QueueWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(5 * time.Second)

	qw.Logger.Println("Queue worker started")

	ticker := time.NewTicker(qw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			qw.Logger.Println("Queue worker shutting down...")
			return
		case <-ticker.C:
			if err := qw.Sweep(); err != nil {
				qw.Logger.Printf("Queue sweep failed: %v", err)
				sentry.CaptureException(err)
			}
		}
	}
}

// Sweep processes every due entry once. Entries are independent: a send
// failure is recorded on its entry and the sweep carries on. Only a store
// failure on the initial selection is sweep-fatal; the next tick retries.
func (qw *QueueWorker) Sweep() error {
	var due []models.QueueEntry
	err := qw.DB.
		Where("status = ? AND scheduled_for <= ?", models.QueueStatusScheduled, time.Now()).
		Find(&due).Error
	if err != nil {
		return fmt.Errorf("selecting due queue entries: %w", err)
	}

	for i := range due {
		qw.processEntry(&due[i])
	}
	return nil
}

func (qw *QueueWorker) processEntry(entry *models.QueueEntry) {
	// Claim the entry with a conditional update before sending. Overlapping
	// sweeps both select the same due rows; only the one whose update sticks
	// may send, so a sent entry can never go out twice.
	claim := qw.DB.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ?", entry.ID, models.QueueStatusScheduled).
		Update("status", models.QueueStatusSending)
	if claim.Error != nil {
		qw.Logger.Printf("Failed to claim queue entry %d: %v", entry.ID, claim.Error)
		return
	}
	if claim.RowsAffected == 0 {
		// Another sweep got there first.
		return
	}

	if err := qw.Mail.Send(entry.Email, entry.Subject, entry.Body); err != nil {
		logrus.WithFields(logrus.Fields{
			"queue_entry": entry.ID,
			"automation":  entry.AutomationName,
			"recipient":   entry.Email,
			"rejected":    utils.IsRecipientRejected(err),
		}).Warnf("queue send failed: %v", err)

		// Terminal: failed entries wait for an operator, never auto-retry.
		if err := qw.DB.Model(entry).Updates(map[string]interface{}{
			"status":     models.QueueStatusFailed,
			"last_error": err.Error(),
		}).Error; err != nil {
			qw.Logger.Printf("Failed to mark queue entry %d failed: %v", entry.ID, err)
		}
		return
	}

	if err := qw.DB.Model(entry).Updates(map[string]interface{}{
		"status":  models.QueueStatusSent,
		"sent_at": time.Now(),
	}).Error; err != nil {
		qw.Logger.Printf("Failed to mark queue entry %d sent: %v", entry.ID, err)
	}
}
