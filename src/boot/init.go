// Package boot wires the process: database migration, service construction,
// queue consumers and the daily maintenance jobs.
package boot

import (
	"context"
	"log"
	"time"

	"parkbook/src/bookings"
	"parkbook/src/chat"
	"parkbook/src/common"
	"parkbook/src/db"
	"parkbook/src/lib"
	awslib "parkbook/src/lib/aws"
	"parkbook/src/lib/mailer"
	"parkbook/src/models"
	"parkbook/src/notify"
	"parkbook/src/payments"
	"parkbook/src/store"
	"parkbook/src/utils"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

// SweepQueue receives nudges scheduled at each hold's exact expiry so an
// expired hold is not left dangling until the next daily tick.
const SweepQueue = "BookingSweeps"

type Services struct {
	Store    store.Store
	Payments *payments.Manager
	Bookings *bookings.Coordinator
	Chat     *chat.Gate
	Notify   *notify.Scheduler
}

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.MessageThread{},
		&models.Message{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitServices builds the domain services on top of the database-backed
// store. Transition events go to kafka locally and SQS in production.
func InitServices(conn *gorm.DB) *Services {
	var pub store.Publisher
	if utils.IsProd() {
		pub = lib.SQSPublisher{}
	} else {
		pub = &lib.KafkaPublisher{ClientId: "bookings"}
	}
	s := store.NewGormStore(conn, pub)
	pm := payments.NewManager(s, lib.StripeProcessor{})
	queue := mailer.Queue{}
	return &Services{
		Store:    s,
		Payments: pm,
		Bookings: bookings.NewCoordinator(s, pm, queue),
		Chat:     chat.NewGate(s),
		Notify:   notify.NewScheduler(s, queue),
	}
}

// InitBroker starts the queue consumers. Topics are created up front locally;
// in production the queues are provisioned infrastructure.
func InitBroker(svcs *Services) {
	if !utils.IsProd() {
		go lib.KafkaCreateTopics(
			store.TOPIC_BOOKING_TRANSITIONS,
			utils.WithSuffix("EmailsToSend"),
			utils.WithSuffix(SweepQueue),
		)
	}
	go common.EmailsToSendConsumer()
	go sweepNudgeConsumer(svcs)
}

func sweepNudgeConsumer(svcs *Services) {
	qname := utils.WithSuffix(SweepQueue)
	handler := func(spayload string) {
		if !gjson.Valid(spayload) {
			log.Printf("[%s]: Received invalid json body. Aborting", qname)
			return
		}
		id := gjson.Get(spayload, "booking_id").String()
		log.Printf("[%s] Expiry nudge for booking %s\n", qname, id)
		runExpirySweep(svcs)
	}
	if utils.IsProd() {
		c := awslib.NewSQSConsumer(qname, handler)
		c.Listen()
		return
	}
	lib.KafkaConsumer("sweeps", qname, handler)
}

func runExpirySweep(svcs *Services) {
	ctx := context.Background()
	now := time.Now().UTC()
	ids, err := svcs.Payments.ExpireSweep(ctx, now)
	if err != nil {
		log.Printf("[sweep] Error running expiry sweep: %s\n", err.Error())
		return
	}
	for _, id := range ids {
		if err := svcs.Bookings.CancelExpired(ctx, id); err != nil {
			log.Printf("[sweep] Error cancelling booking %s: %s\n", id, err.Error())
		}
	}
	if len(ids) > 0 {
		log.Printf("[sweep] Expired %d holds\n", len(ids))
	}
}

// InitScheduler registers the daily maintenance jobs and starts the
// in-process scheduler. Each job takes a redis day-lock first so multiple
// replicas do the work once.
func InitScheduler(svcs *Services) {
	_, err := lib.CreateDailyJob("hold-expiry-sweep", gocron.NewAtTime(0, 10, 0), func() {
		now := time.Now().UTC()
		if !lib.AcquireDailyLock(context.Background(), "sweep", now) {
			return
		}
		runExpirySweep(svcs)
	})
	if err != nil {
		log.Printf("Error registering sweep job: %s\n", err.Error())
	}

	_, err = lib.CreateDailyJob("anniversary-notifications", gocron.NewAtTime(8, 0, 0), func() {
		ctx := context.Background()
		now := time.Now().UTC()
		if !lib.AcquireDailyLock(ctx, "notify", now) {
			return
		}
		fired, err := svcs.Notify.RunDaily(ctx, now)
		if err != nil {
			log.Printf("[notify] Error running daily notifications: %s\n", err.Error())
			return
		}
		if len(fired) > 0 {
			log.Printf("[notify] Fired %d check-ins\n", len(fired))
		}
	})
	if err != nil {
		log.Printf("Error registering notification job: %s\n", err.Error())
	}

	_, err = lib.CreateDailyJob("thread-cleanup", gocron.NewAtTime(0, 20, 0), func() {
		ctx := context.Background()
		now := time.Now().UTC()
		if !lib.AcquireDailyLock(ctx, "threads", now) {
			return
		}
		expired, err := svcs.Chat.ExpireStaleThreads(ctx, now)
		if err != nil {
			log.Printf("[chat] Error expiring threads: %s\n", err.Error())
			return
		}
		if len(expired) > 0 {
			log.Printf("[chat] Closed %d threads\n", len(expired))
		}
	})
	if err != nil {
		log.Printf("Error registering thread cleanup job: %s\n", err.Error())
	}

	_, err = lib.CreateDailyJob("complete-elapsed-bookings", gocron.NewAtTime(0, 30, 0), func() {
		ctx := context.Background()
		now := time.Now().UTC()
		if !lib.AcquireDailyLock(ctx, "complete", now) {
			return
		}
		done, err := svcs.Bookings.CompleteElapsed(ctx, now)
		if err != nil {
			log.Printf("[bookings] Error completing elapsed bookings: %s\n", err.Error())
			return
		}
		if len(done) > 0 {
			log.Printf("[bookings] Completed %d bookings\n", len(done))
		}
	})
	if err != nil {
		log.Printf("Error registering completion job: %s\n", err.Error())
	}

	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	log.Printf("Jobs in queue: %d\n", len(sched.Jobs()))
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}

// ScheduleExpiryNudge registers a one-time schedule that pokes the sweep
// right when a hold expires. Best effort, the daily sweep is the safety net.
func ScheduleExpiryNudge(bookingID uuid.UUID, expiresAt time.Time) {
	vars := map[string]string{
		"name":     "hold-expiry-" + bookingID.String(),
		"topic":    utils.WithSuffix(SweepQueue),
		"clientId": "sweeps",
	}
	payload := map[string]any{"booking_id": bookingID.String()}
	if _, err := lib.NewScheduledJob(expiresAt.Add(time.Minute), vars, payload); err != nil {
		log.Printf("Error scheduling expiry nudge for %s: %s\n", bookingID, err.Error())
	}
}
