// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/smsleopard-dashboard/internal/config"
	"github.com/unclebandit/smsleopard-dashboard/internal/db"
	"github.com/unclebandit/smsleopard-dashboard/internal/events"
	"github.com/unclebandit/smsleopard-dashboard/internal/handler"
	"github.com/unclebandit/smsleopard-dashboard/internal/queue"
	"github.com/unclebandit/smsleopard-dashboard/internal/repository"
	"github.com/unclebandit/smsleopard-dashboard/internal/service"
)

const scheduledScanInterval = 30 * time.Second

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Println("✅ Connected to database")

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("smsleopard-server"))
	if err != nil {
		log.Fatal("Failed to connect to NATS:", err)
	}
	defer nc.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	bridge := events.NewBridge(nc, rdb, campaignRepo.ActiveByUser)
	if err := bridge.Start(); err != nil {
		log.Fatal("Failed to start event bridge:", err)
	}
	defer bridge.Stop()

	var q queue.Queue
	if cfg.AMQPURL == "" {
		// No broker configured: consume sends inside this process, no
		// separate worker needed.
		mem := queue.NewInMemoryQueue()
		sender := service.NewSender(campaignRepo, recipientRepo, bridge, nil)
		err := mem.Subscribe(queue.TopicSendJobs, func(payload any) error {
			recipientID, ok := payload.(int)
			if !ok {
				log.Println("⚠️ Invalid payload type, expected int")
				return nil
			}
			return sender.Process(recipientID)
		})
		if err != nil {
			log.Fatal("Failed to start in-process consumer:", err)
		}
		log.Println("⚠️ AMQP_URL is empty, processing sends in-process")
		q = mem
	} else {
		aq, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ:", err)
		}
		defer aq.Close()
		q = aq
	}

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		Queue:         q,
		Events:        bridge,
	}

	// Promote scheduled campaigns once their trigger time passes.
	go func() {
		ticker := time.NewTicker(scheduledScanInterval)
		defer ticker.Stop()
		for range ticker.C {
			campaignService.StartDueScheduled(time.Now())
		}
	}()

	r := handler.NewRouter(&handler.Handler{
		Service:   campaignService,
		JWTSecret: cfg.JWTSecret,
	})

	log.Println("🚀 Server running on :" + cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
