//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/application"
	learningEvents "github.com/tutorly/service-learning/internal/events"
	"github.com/tutorly/service-learning/internal/repository"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/database"
	"github.com/tutorly/service-learning/pkg/events"
	"github.com/tutorly/service-learning/pkg/kafka"
	"github.com/tutorly/service-learning/pkg/lock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Redis        *redis.Client
	Cleanup      func()
}

// learningStack holds wired-up service components.
type learningStack struct {
	Catalog         *application.CatalogService
	Bookings        *application.BookingService
	Payments        *application.PaymentService
	Wallet          *application.WalletService
	Consumer        *learningEvents.GatewaySettlementConsumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL, Redis and Kafka and applies the SQL migrations.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_learning",
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

	pgConfig := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_learning",
		SSLMode:  "disable",
	}

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(pgConfig, logger)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(pgConfig.DatabaseURL(), "migrations", logger))

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(redisHost, redisPort.Port())})

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicGatewayEvents, events.TopicNotifications)

	cleanup := func() {
		_ = redisClient.Close()
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Redis:        redisClient,
		Cleanup:      cleanup,
	}
}

// setupLearningStack wires the services the way cmd/server does, with mock providers.
func setupLearningStack(t *testing.T, infra *testInfra) *learningStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	uow := repository.NewUnitOfWork(infra.DB)
	az := authz.MustNew()
	clk := clock.RealClock{}
	locker := lock.NewRedisLocker(infra.Redis, 15*time.Second)
	producer := kafka.NewProducer(infra.KafkaBrokers, logger)
	notifier := adapter.NewKafkaNotifier(producer, "learning-test", 5*time.Second, 64, logger)
	t.Cleanup(notifier.Close)

	sessions := application.NewSessionService(uow, az, adapter.NewMockMeetingProvider("https://meet.test", logger),
		notifier, nil, clk, 5*time.Second, logger)
	payments := application.NewPaymentService(uow, az, adapter.NewMockGateway(0, logger), sessions, notifier, nil,
		clk, 5*time.Second, logger)
	bookings := application.NewBookingService(uow, az, locker, payments, notifier, nil, clk,
		application.BookingPolicy{PlatformFeePercent: 15, LockWait: 5 * time.Second, PaymentTTL: 15 * time.Minute}, logger)

	groupID := fmt.Sprintf("test-learning-%s", uuid.New().String()[:8])
	consumer := learningEvents.NewGatewaySettlementConsumer(infra.KafkaBrokers, groupID, payments, nil, logger)

	return &learningStack{
		Catalog:         application.NewCatalogService(uow, az, clk, "USD", logger),
		Bookings:        bookings,
		Payments:        payments,
		Wallet:          application.NewWalletService(uow, az, locker, notifier, nil, clk, "USD", 10*time.Second, logger),
		Consumer:        consumer,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedPendingPayment publishes a teacher, books one hour two days out and records a pending payment.
func seedPendingPayment(t *testing.T, stack *learningStack, teacher, student auth.Actor) *application.PaymentDTO {
	t.Helper()
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)

	_, err := stack.Catalog.SetRate(ctx, teacher, application.SetRateRequest{HourlyRateCents: 6000})
	require.NoError(t, err)
	_, err = stack.Catalog.AddAvailability(ctx, teacher, application.SlotRequest{Start: start, End: start.Add(8 * time.Hour)})
	require.NoError(t, err)

	b, err := stack.Bookings.CreateBooking(ctx, student, application.CreateBookingRequest{
		TeacherID: &teacher.ID,
		Slots:     []application.SlotRequest{{Start: start, End: start.Add(time.Hour)}},
	})
	require.NoError(t, err)

	p, err := stack.Payments.RecordAttempt(ctx, student, application.RecordPaymentRequest{
		TargetType:    "booking",
		TargetID:      b.ID,
		AmountCents:   b.TotalCents,
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)
	return p
}

// seedCompletedEarning inserts a completed booking worth earningCents to the teacher.
func seedCompletedEarning(t *testing.T, db *gorm.DB, teacherID uuid.UUID, earningCents int64) {
	t.Helper()
	now := time.Now().UTC()
	model := repository.BookingModel{
		ID:                  uuid.New(),
		StudentID:           uuid.New(),
		TeacherID:           teacherID,
		Status:              "completed",
		TotalCents:          earningCents,
		TeacherEarningCents: earningCents,
		Currency:            "USD",
		CompletedAt:         &now,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed booking")
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForPaymentStatus polls the payments table until status matches.
func waitForPaymentStatus(t *testing.T, db *gorm.DB, paymentID uuid.UUID, expectedStatus string, timeout time.Duration) repository.PaymentModel {
	t.Helper()
	var result repository.PaymentModel
	require.Eventually(t, func() bool {
		var model repository.PaymentModel
		if err := db.Where("id = ?", paymentID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "payment did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
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

	time.Sleep(1 * time.Second)
}
