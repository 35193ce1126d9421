package nats

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket and stream names owned by the verification service.
const (
	QueueBucket     = "VERIFY_QUEUE"
	HistoryBucket   = "VERIFY_HISTORY"
	AuditViewBucket = "AUDIT_VIEW"
	AuditStream     = "VERIFY_AUDIT"

	// Subjects
	AuditSubjectPrefix    = "verify.audit."
	ProgressSubjectPrefix = "verify.batch.progress."
)

type EmbeddedServer struct {
	server *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
}

func NewEmbeddedServer(dataDir string) (*EmbeddedServer, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "nats-store"),
		Port:      -1, // Random port, internal use only
		HTTPPort:  -1, // HTTP monitoring disabled
	}

	if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("NATS server did not become ready")
	}

	slog.Info("Embedded NATS server started", "clientURL", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	es := &EmbeddedServer{
		server: ns,
		nc:     nc,
		js:     js,
	}

	if err := es.createStreams(); err != nil {
		es.Shutdown()
		return nil, err
	}

	if err := es.createKVStores(); err != nil {
		es.Shutdown()
		return nil, err
	}

	return es, nil
}

func (es *EmbeddedServer) createStreams() error {
	// Audit stream: the append-only record of everything the engine did.
	// Events are published to verify.audit.<event> and retained for 90 days.
	auditStreamConfig := jetstream.StreamConfig{
		Name:        AuditStream,
		Description: "Append-only verification audit log",
		Subjects:    []string{AuditSubjectPrefix + ">"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		MaxMsgs:     5000000,
		MaxBytes:    5 * 1024 * 1024 * 1024, // 5GB
	}

	_, err := es.js.CreateOrUpdateStream(context.Background(), auditStreamConfig)
	if err != nil {
		return fmt.Errorf("failed to create audit stream: %w", err)
	}
	slog.Info("VERIFY_AUDIT stream created")

	return nil
}

func (es *EmbeddedServer) createKVStores() error {
	ctx := context.Background()

	// Queue: pending and in-progress verification requests, keyed by id.
	_, err := es.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      QueueBucket,
		Description: "Pending verification requests",
		History:     1,
		TTL:         0, // Entries leave the queue explicitly, never by expiry
		MaxBytes:    100 * 1024 * 1024, // 100MB
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create queue KV store: %w", err)
	}
	slog.Info("VERIFY_QUEUE KV store created")

	// History: immutable verification results, keyed by id.
	_, err = es.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      HistoryBucket,
		Description: "Completed verification results",
		History:     1,
		TTL:         90 * 24 * time.Hour,
		MaxBytes:    500 * 1024 * 1024, // 500MB
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create history KV store: %w", err)
	}
	slog.Info("VERIFY_HISTORY KV store created")

	// Audit view: recent audit events mirrored from the stream by the
	// audit consumer, for cheap web-layer reads.
	_, err = es.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      AuditViewBucket,
		Description: "Recent audit events (read view)",
		History:     1,
		TTL:         7 * 24 * time.Hour,
		MaxBytes:    100 * 1024 * 1024, // 100MB
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create audit view KV store: %w", err)
	}
	slog.Info("AUDIT_VIEW KV store created")

	return nil
}

func (es *EmbeddedServer) JetStream() jetstream.JetStream {
	return es.js
}

func (es *EmbeddedServer) Connection() *nats.Conn {
	return es.nc
}

func (es *EmbeddedServer) Shutdown() {
	if es.nc != nil {
		es.nc.Close()
	}
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	slog.Info("NATS server shut down")
}
