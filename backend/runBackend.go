package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lifetrack-app/lifetrack/backend/queue"
	"github.com/lifetrack-app/lifetrack/backend/server"
	"github.com/lifetrack-app/lifetrack/backend/server/auth"
	"github.com/lifetrack-app/lifetrack/backend/server/habits"
	"github.com/lifetrack-app/lifetrack/backend/server/notifications/email"
	storage "github.com/lifetrack-app/lifetrack/backend/storage/persistent"
)

// RunBackend wires the whole server together and blocks until the process
// receives an interrupt: storage handle, confirmation-email pipeline, auth
// and habit services, and the HTTP boundary. Collaborators are constructed
// here and passed down explicitly; nothing connects at import time.
func RunBackend() {
	// Load the .env file.
	err := godotenv.Load("backend/.env")
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	signingKey := os.Getenv("JWT_SIGNING_KEY") // JWT signing key for token generation
	serverURL := os.Getenv("SERVER_URL")       // The URL where the server is running
	dbURI := os.Getenv("MONGODB_URI")          // MongoDB database URI
	dbName := os.Getenv("DB_NAME")             // The name of the MongoDB database
	smtpEmail := os.Getenv("GOOGLE_EMAIL")     // The email address used for sending emails
	smtpPassword := os.Getenv("GOOGLE_PASS")   // The password for the email account
	redisUrl := os.Getenv("REDIS_URL")         // The Redis URL for deduplicating emails
	rabbitMQURL := os.Getenv("RABBITMQ_URL")   // The URL for the RabbitMQ message broker
	numEmailProducers := 1
	numEmailConsumers := 2
	ctx := context.Background()

	store, err := storage.NewStorage(dbName, dbURI)
	if err != nil {
		log.Fatalf("error initializing storage: %v", err)
	}
	defer store.Disconnect()

	// The confirmation-email pipeline needs SMTP, Redis, and RabbitMQ. If
	// the broker isn't configured the server runs without it and
	// registration skips the confirmation email.
	var emailQueue *queue.Queue
	if rabbitMQURL != "" {
		if _, err := email.InitEmailService(smtpEmail, smtpPassword); err != nil {
			log.Fatalf("error initializing email service: %v", err)
		}

		emailCache, err := queue.InitEmailCache(redisUrl)
		if err != nil {
			log.Fatalf("error initializing email cache: %v", err)
		}

		emailQueue, err = queue.BuildEmailQueue(rabbitMQURL, numEmailProducers, numEmailConsumers, emailCache)
		if err != nil {
			log.Fatalf("error building email queue: %v", err)
		}

		_, _, err = emailQueue.StartConsumers(ctx)
		if err != nil {
			log.Fatal("error starting queue consumers: ", err)
		}
	} else {
		log.Println("RABBITMQ_URL not set, confirmation emails disabled")
	}

	authService := auth.NewService(store, signingKey, emailQueue)
	habitService := habits.NewService(store)

	go func() {
		if err := server.Start(serverURL, signingKey, authService, habitService); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	// Block until an interrupt arrives, then let the deferred disconnect run.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	fmt.Println()
	fmt.Println(sig)
}
