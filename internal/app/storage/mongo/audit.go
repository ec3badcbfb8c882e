// Package mongo keeps a copy of the audit trail in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

// DefaultCollection is the collection audit entries are written to.
const DefaultCollection = "audit_log"

var _ storage.AuditStore = (*AuditStore)(nil)

// AuditStore implements storage.AuditStore over one collection.
type AuditStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewAuditStore wraps an existing collection.
func NewAuditStore(coll *mongo.Collection) *AuditStore {
	return &AuditStore{coll: coll, now: func() time.Time { return time.Now().UTC() }}
}

// Connect dials uri, pings within timeout and returns the client together
// with a store on the DefaultCollection of database.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*mongo.Client, *AuditStore, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	store := NewAuditStore(client.Database(database).Collection(DefaultCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, store, nil
}

// EnsureIndexes creates the lookup indexes used by ListAudit.
func (s *AuditStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return apperrors.WrapStore("audit_log.indexes", err)
}

// AppendAudit inserts e. The entry id becomes the document _id, so a
// mirrored entry written twice is rejected rather than duplicated.
func (s *AuditStore) AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if _, err := s.coll.InsertOne(ctx, e); err != nil {
		return audit.Entry{}, apperrors.WrapStore("audit_log.insert", err)
	}
	return e, nil
}

func (s *AuditStore) ListAudit(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	cur, err := s.coll.Find(ctx, filterDocument(filter), findOptions(filter))
	if err != nil {
		return nil, apperrors.WrapStore("audit_log.find", err)
	}
	defer cur.Close(ctx)

	out := []audit.Entry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.WrapStore("audit_log.decode", err)
	}
	return out, nil
}

func filterDocument(f audit.Filter) bson.M {
	doc := bson.M{}
	if f.EntityType != "" {
		doc["entity_type"] = f.EntityType
	}
	if f.EntityID != "" {
		doc["entity_id"] = f.EntityID
	}
	if f.ActorID != "" {
		doc["actor_id"] = f.ActorID
	}
	return doc
}

func findOptions(f audit.Filter) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return opts
}
