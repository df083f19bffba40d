// cmd/worker/main.go
package main

import (
	"log"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/smsleopard-dashboard/internal/config"
	"github.com/unclebandit/smsleopard-dashboard/internal/db"
	"github.com/unclebandit/smsleopard-dashboard/internal/events"
	"github.com/unclebandit/smsleopard-dashboard/internal/queue"
	"github.com/unclebandit/smsleopard-dashboard/internal/repository"
	"github.com/unclebandit/smsleopard-dashboard/internal/service"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("smsleopard-worker"))
	if err != nil {
		log.Fatal("Failed to connect to NATS:", err)
	}
	defer nc.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	bridge := events.NewBridge(nc, rdb, campaignRepo.ActiveByUser)

	sender := service.NewSender(campaignRepo, recipientRepo, bridge, nil)

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	err = q.Subscribe(queue.TopicSendJobs, func(payload any) error {
		recipientID, ok := payload.(int)
		if !ok {
			log.Println("⚠️ Invalid payload type, expected int")
			return nil
		}
		return sender.Process(recipientID)
	})
	if err != nil {
		log.Fatal("Failed to start consumer:", err)
	}

	log.Println("Worker running, waiting for messages...")
	select {}
}
