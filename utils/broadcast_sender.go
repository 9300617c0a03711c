package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"emberline/models"
)

// BroadcastSender does the synchronous bulk fan-out for one-shot campaigns.
// It resolves the audience, snapshots it, personalizes tracking per recipient
// and sends through the Transport, carrying on past individual failures.
type BroadcastSender struct {
	DB             *gorm.DB
	Mail           Transport
	BaseURL        string
	UnsubscribeKey []byte
}

func NewBroadcastSender(db *gorm.DB, mail Transport, baseURL string, unsubscribeKey []byte) *BroadcastSender {
	return &BroadcastSender{
		DB:             db,
		Mail:           mail,
		BaseURL:        baseURL,
		UnsubscribeKey: unsubscribeKey,
	}
}

// Send resolves the broadcast's audience, records the SentBroadcast snapshot,
// then sends one personalized copy per recipient. Returns sent and failed
// tallies; an individual failure never aborts the batch.
func (bs *BroadcastSender) Send(broadcast *models.Broadcast) (int, int, error) {
	recipients, err := bs.resolveAudience(broadcast)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving audience: %w", err)
	}

	// Snapshot before sending so analytics see the audience exactly as it
	// was at send time, even if subscribers churn afterwards.
	snapshot, err := bs.snapshotAudience(broadcast, recipients)
	if err != nil {
		return 0, 0, fmt.Errorf("recording broadcast snapshot: %w", err)
	}

	sent, failed := 0, 0
	for i := range recipients {
		sub := &recipients[i]
		if err := bs.sendToRecipient(broadcast, snapshot, sub); err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"broadcast_id": broadcast.ID,
				"recipient":    sub.Email,
				"rejected":     IsRecipientRejected(err),
			}).Warnf("broadcast send failed: %v", err)
			continue
		}
		sent++

		// Single-row atomic bump; read-modify-write here would lose updates
		// when a sweep touches the same subscriber.
		if err := bs.DB.Model(&models.Subscriber{}).
			Where("id = ?", sub.ID).
			Updates(map[string]interface{}{
				"emails_received": gorm.Expr("emails_received + ?", 1),
				"last_emailed_at": time.Now(),
			}).Error; err != nil {
			logrus.WithField("recipient", sub.Email).Warnf("failed to bump subscriber counters: %v", err)
		}
	}

	now := time.Now()
	if err := bs.DB.Model(broadcast).Updates(map[string]interface{}{
		"status":       models.BroadcastStatusSent,
		"sent_at":      now,
		"sent_count":   sent,
		"failed_count": failed,
	}).Error; err != nil {
		return sent, failed, fmt.Errorf("finalizing broadcast %d: %w", broadcast.ID, err)
	}

	return sent, failed, nil
}

// resolveAudience loads currently-subscribed recipients, narrowed by the
// broadcast's source tag and free-form tags. Tag matching is any-overlap, not
// exact: one shared tag is enough.
func (bs *BroadcastSender) resolveAudience(broadcast *models.Broadcast) ([]models.Subscriber, error) {
	query := bs.DB.Where("subscribed = ?", true)
	if broadcast.SourceTag != "" {
		query = query.Where("source = ?", broadcast.SourceTag)
	}

	var subscribers []models.Subscriber
	if err := query.Find(&subscribers).Error; err != nil {
		return nil, err
	}

	wantTags := models.SplitTags(broadcast.Tags)
	if len(wantTags) == 0 {
		return subscribers, nil
	}

	matched := subscribers[:0]
	for _, sub := range subscribers {
		if sub.HasAnyTag(wantTags) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

func (bs *BroadcastSender) snapshotAudience(broadcast *models.Broadcast, recipients []models.Subscriber) (*models.SentBroadcast, error) {
	emails := make([]string, 0, len(recipients))
	for _, sub := range recipients {
		emails = append(emails, sub.Email)
	}

	snapshot := models.SentBroadcast{
		BroadcastID:         broadcast.ID,
		Subject:             broadcast.Subject,
		Body:                broadcast.Body,
		AudienceDescription: describeAudience(broadcast),
		Recipients:          strings.Join(emails, "\n"),
		RecipientCount:      len(emails),
		SentAt:              time.Now(),
	}
	if err := bs.DB.Create(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (bs *BroadcastSender) sendToRecipient(broadcast *models.Broadcast, snapshot *models.SentBroadcast, sub *models.Subscriber) error {
	body := InjectTracking(broadcast.Body, bs.BaseURL, snapshot.ID, sub.Email)

	if strings.Contains(body, UnsubscribePlaceholder) {
		link, err := UnsubscribeURL(bs.BaseURL, bs.UnsubscribeKey, sub.Email, snapshot.ID)
		if err != nil {
			return fmt.Errorf("building unsubscribe link: %w", err)
		}
		body = strings.ReplaceAll(body, UnsubscribePlaceholder, link)
	}

	return bs.Mail.Send(sub.Email, broadcast.Subject, body)
}

func describeAudience(broadcast *models.Broadcast) string {
	var parts []string
	if broadcast.SourceTag != "" {
		parts = append(parts, "source="+broadcast.SourceTag)
	}
	if tags := models.SplitTags(broadcast.Tags); len(tags) > 0 {
		parts = append(parts, "tags="+strings.Join(tags, "|"))
	}
	if len(parts) == 0 {
		return "all subscribed"
	}
	return strings.Join(parts, " ")
}
