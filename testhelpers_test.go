//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/application"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/events"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store/local"
	"github.com/tankerflow/booking-engine/internal/store/remote"
)

const changeTopic = "tanker.table-changes"

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// bookingStack holds the wired-up remote storage and services.
type bookingStack struct {
	Bookings  *remote.Bookings
	Users     *remote.Users
	Lifecycle *application.BookingLifecycle
	Payments  *application.PaymentCoordinator
	Manager   *realtime.Manager
	Cleanup   func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a
// connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_booking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_booking sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.AutoMigrate(remote.AllModels()...))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, changeTopic)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupBookingStack wires the remote adapters and services the way the
// server binary does.
func setupBookingStack(t *testing.T, db *gorm.DB, brokers []string) *bookingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	publisher := events.NewChangePublisher(brokers, changeTopic, logger)
	groupPrefix := fmt.Sprintf("test-%s", uuid.NewString()[:8])
	feed := realtime.NewKafkaFeed(brokers, changeTopic, groupPrefix, logger)
	manager := realtime.NewManager(feed, logger)

	resolver := remote.NewIdentityResolver(db)
	bookings := remote.NewBookings(db, resolver, publisher, manager)
	users := remote.NewUsers(db, resolver, publisher, manager)

	return &bookingStack{
		Bookings:  bookings,
		Users:     users,
		Lifecycle: application.NewBookingLifecycle(bookings, logger),
		Payments:  application.NewPaymentCoordinator(bookings, logger),
		Manager:   manager,
		Cleanup: func() {
			manager.Close()
			_ = publisher.Close()
		},
	}
}

// openLocalStore creates a fresh on-device store in the test's temp dir.
func openLocalStore(t *testing.T) *local.Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	s, err := local.Open(filepath.Join(t.TempDir(), "device.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitForBookingStatus polls the bookings table until the status matches.
func waitForBookingStatus(t *testing.T, db *gorm.DB, bookingID, expectedStatus string, timeout time.Duration) remote.BookingModel {
	t.Helper()
	var result remote.BookingModel
	require.Eventually(t, func() bool {
		var model remote.BookingModel
		err := db.Where("id = ?", bookingID).First(&model).Error
		if err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not reach status %s", expectedStatus)
	return result
}

// drainEvents collects change events delivered to a subscription handler.
type drainEvents struct {
	ch chan realtime.Event
}

func newDrain() *drainEvents {
	return &drainEvents{ch: make(chan realtime.Event, 32)}
}

func (d *drainEvents) handler(ev realtime.Event) {
	select {
	case d.ch <- ev:
	default:
	}
}

func (d *drainEvents) waitFor(t *testing.T, timeout time.Duration, match func(realtime.Event) bool) realtime.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-d.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for change event")
			return realtime.Event{}
		}
	}
}

// seedDraft returns a valid booking draft for the given customer.
func seedDraft(customerID string) booking.Booking {
	return booking.Booking{
		CustomerID:     customerID,
		TankerSize:     booking.TankerMedium,
		Quantity:       1,
		BasePrice:      500,
		DistanceCharge: 50,
		IsImmediate:    true,
		DeliveryAddress: booking.DeliveryAddress{
			Line1:   "12 Lake View Road",
			City:    "Pune",
			Pincode: "411001",
		},
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with
// "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
