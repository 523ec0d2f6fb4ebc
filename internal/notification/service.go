package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"
	"dmarcview-backend/internal/sync/repository"
	"dmarcview-backend/internal/sync/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes to the watch topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service turns Gmail push notifications into sync runs. A notification for
// a mailbox without an active gmail config is dropped.
type Service struct {
	pubsubClient *pubsub.Client
	configRepo   repository.SyncConfigRepository
	syncUsecase  usecase.SyncUsecase
	projectID    string
	topicName    string
	subName      string

	// Deduplication: last historyId seen per mailbox. Gmail redelivers
	// aggressively.
	lastHistoryID map[string]uint64
	mu            sync.Mutex
}

func NewService(projectID, topicName, credentialsFile string, configRepo repository.SyncConfigRepository, syncUsecase usecase.SyncUsecase) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient:  client,
		configRepo:    configRepo,
		syncUsecase:   syncUsecase,
		projectID:     projectID,
		topicName:     topicName,
		subName:       topicName + "-sub", // Convention: topic-sub
		lastHistoryID: make(map[string]uint64),
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	if s.isDuplicate(notification.EmailAddress, notification.HistoryID) {
		return
	}

	cfg, err := s.configRepo.FindByEmailAndProvider(notification.EmailAddress, syncdomain.ProviderGmail)
	if err != nil {
		log.Printf("[PubSub] Error resolving config for %s: %v", notification.EmailAddress, err)
		return
	}
	if cfg == nil || !cfg.Active {
		return
	}

	log.Printf("[PubSub] Mailbox activity for %s (historyId: %d), triggering sync", notification.EmailAddress, notification.HistoryID)

	go func() {
		summary, err := s.syncUsecase.SyncEmails(context.Background(), cfg.ID, cfg.UserID, nil)
		if err != nil {
			if errors.Is(err, usecase.ErrSyncInProgress) {
				return
			}
			log.Printf("[PubSub] Push-triggered sync failed for config %s: %v", cfg.ID, err)
			return
		}
		if summary != nil && summary.ReportsProcessed > 0 {
			log.Printf("[PubSub] Push-triggered sync for %s imported %d reports", notification.EmailAddress, summary.ReportsProcessed)
		}
	}()
}

func (s *Service) isDuplicate(email string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastHistoryID[email]; ok && historyID <= last {
		return true
	}
	s.lastHistoryID[email] = historyID
	return false
}
