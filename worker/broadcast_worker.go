package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

// BroadcastWorker sends scheduled broadcast drafts when their time comes.
// Immediate sends go straight through the controller; only scheduled ones
// pass through here.
type BroadcastWorker struct {
	DB       *gorm.DB
	Sender   *utils.BroadcastSender
	Logger   *log.Logger
	Interval time.Duration
}

func NewBroadcastWorker(db *gorm.DB, sender *utils.BroadcastSender, logger *log.Logger, interval time.Duration) *BroadcastWorker {
	return &BroadcastWorker{
		DB:       db,
		Sender:   sender,
		Logger:   logger,
		Interval: interval,
	}
}

func (bw *BroadcastWorker) Start(ctx context.Context) {
	time.Sleep(5 * time.Second)

	bw.Logger.Println("Broadcast worker started")

	ticker := time.NewTicker(bw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.Logger.Println("Broadcast worker shutting down...")
			return
		case <-ticker.C:
			if err := bw.Sweep(); err != nil {
				bw.Logger.Printf("Broadcast sweep failed: %v", err)
				sentry.CaptureException(err)
			}
		}
	}
}

func (bw *BroadcastWorker) Sweep() error {
	var due []models.Broadcast
	err := bw.DB.
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?",
			models.BroadcastStatusScheduled, time.Now()).
		Find(&due).Error
	if err != nil {
		return fmt.Errorf("selecting due broadcasts: %w", err)
	}

	for i := range due {
		bw.processBroadcast(&due[i])
	}
	return nil
}

func (bw *BroadcastWorker) processBroadcast(broadcast *models.Broadcast) {
	// Same claim discipline as the queue sweep: only the sweep whose status
	// flip sticks gets to send.
	claim := bw.DB.Model(&models.Broadcast{}).
		Where("id = ? AND status = ?", broadcast.ID, models.BroadcastStatusScheduled).
		Update("status", models.BroadcastStatusSending)
	if claim.Error != nil {
		bw.Logger.Printf("Failed to claim broadcast %d: %v", broadcast.ID, claim.Error)
		return
	}
	if claim.RowsAffected == 0 {
		return
	}

	sent, failed, err := bw.Sender.Send(broadcast)
	if err != nil {
		bw.Logger.Printf("Broadcast %d send failed: %v", broadcast.ID, err)
		sentry.CaptureException(err)
		// Release the claim so an operator can re-send; "sending" would
		// refuse every retry.
		if uerr := bw.DB.Model(&models.Broadcast{}).
			Where("id = ?", broadcast.ID).
			Update("status", models.BroadcastStatusFailed).Error; uerr != nil {
			bw.Logger.Printf("Failed to mark broadcast %d failed: %v", broadcast.ID, uerr)
		}
		return
	}
	bw.Logger.Printf("Broadcast %d sent: %d delivered, %d failed", broadcast.ID, sent, failed)
}
