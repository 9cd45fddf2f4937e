package warehouse

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"secsync/internal/etl"
)

// ── Raw-event archive ──────────────────────────────────────
// SIEM feeds are additionally archived unmodified into MongoDB, one
// document per record, so reshaped warehouse rows can always be traced
// back to what the vendor actually sent.

// Archiver writes record batches into a MongoDB collection named after
// the destination table. It implements etl.Destination.
type Archiver struct {
	client *mongo.Client
	dbName string
}

// NewArchiver connects to the archive cluster and verifies the
// connection with a ping.
func NewArchiver(ctx context.Context, uri, dbName string) (*Archiver, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	return &Archiver{client: client, dbName: dbName}, nil
}

// Close disconnects from the archive cluster.
func (a *Archiver) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

// Write inserts one document per record. Replace mode drops the
// collection first; upsert and append both append, since archived raw
// events are immutable.
func (a *Archiver) Write(ctx context.Context, req etl.WriteRequest) (int, error) {
	if len(req.Records) == 0 {
		return 0, nil
	}
	coll := a.client.Database(a.dbName).Collection(req.Table)

	if req.Mode == etl.SyncReplace {
		if err := coll.Drop(ctx); err != nil {
			return 0, fmt.Errorf("drop archive collection %s: %w", req.Table, err)
		}
	}

	now := time.Now().UTC()
	docs := make([]any, 0, len(req.Records))
	for _, rec := range req.Records {
		doc := bson.M{"archived_at": now}
		for k, v := range rec.Data {
			doc[k] = v
		}
		docs = append(docs, doc)
	}

	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", req.Table, err)
	}
	return len(res.InsertedIDs), nil
}
