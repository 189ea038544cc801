package reconcile

import (
	"context"
	stderrors "errors"
	"eventmaster/domain"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const duplicateKeyCode = 11000

// mongoRecord is one document per (namespace, id).
type mongoRecord struct {
	Namespace    string `bson:"namespace"`
	RemoteRecord `bson:",inline"`
}

type MongoRemote struct {
	col *mongo.Collection
}

func NewMongoRemote(col *mongo.Collection) *MongoRemote {
	return &MongoRemote{col: col}
}

// ConnectMongo opens a client and checks it answers within ten seconds.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique (namespace, id) index used by the upserts.
func (m *MongoRemote) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("namespace_id"),
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (m *MongoRemote) Pull(ctx context.Context, ns domain.Namespace) ([]RemoteRecord, error) {
	cursor, err := m.col.Find(ctx,
		bson.M{"namespace": ns.String()},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]RemoteRecord, 0, len(docs))
	for _, d := range docs {
		rr := d.RemoteRecord
		rr.UpdatedAt = rr.UpdatedAt.UTC()
		out = append(out, rr)
	}
	return out, nil
}

// Push only replaces documents holding a lower version. When the stored
// version is equal or higher the filter misses, the upsert collides with the
// unique index and the id is reported as stale.
func (m *MongoRemote) Push(ctx context.Context, ns domain.Namespace, records []RemoteRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, rr := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"namespace": ns.String(), "id": rr.ID, "version": bson.M{"$lt": rr.Version}}).
			SetReplacement(mongoRecord{Namespace: ns.String(), RemoteRecord: rr}).
			SetUpsert(true))
	}
	_, err := m.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return nil, nil
	}
	var bulkErr mongo.BulkWriteException
	if !stderrors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
		return nil, fmt.Errorf("upsert records: %w", err)
	}
	stale := make([]int64, 0, len(bulkErr.WriteErrors))
	for _, we := range bulkErr.WriteErrors {
		if we.Code != duplicateKeyCode {
			return nil, fmt.Errorf("upsert records: %w", err)
		}
		stale = append(stale, records[we.Index].ID)
	}
	return stale, nil
}

func (m *MongoRemote) Purge(ctx context.Context, ns domain.Namespace, cutoff time.Time) (int, error) {
	res, err := m.col.DeleteMany(ctx, bson.M{
		"namespace": ns.String(),
		"deleted":   true,
		"updatedAt": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	return int(res.DeletedCount), nil
}
