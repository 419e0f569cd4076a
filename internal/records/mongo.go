package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appLog "laborline/internal/log"
	"laborline/internal/model"
)

// MongoStore reads labor events from the field-service event collection.
// Documents use the event store's naming (event_name, projectStart, ...)
// and are keyed to a job by work_order.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	appLog.Info("connected to mongo", "database", database, "collection", collection)
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// Records returns the events of one work order ordered by start. An empty
// workOrder returns every event whose start falls in [from, to).
func (s *MongoStore) Records(ctx context.Context, workOrder string, from, to time.Time) ([]model.RawRecord, error) {
	filter := bson.M{}
	if workOrder != "" {
		filter["work_order"] = workOrder
	} else {
		// projectStart is stored as "2006-01-02 15:04", which sorts lexically.
		filter["projectStart"] = bson.M{
			"$gte": from.Format("2006-01-02 15:04"),
			"$lt":  to.Format("2006-01-02 15:04"),
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "projectStart", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]model.RawRecord, 0)
	for cursor.Next(ctx) {
		rec, err := fromDocument(cursor.Current)
		if err != nil {
			appLog.Warn("mongo document skipped", "reason", err.Error())
			continue
		}
		out = append(out, rec)
	}
	return out, cursor.Err()
}

// Insert stores records in the event store's naming scheme.
func (s *MongoStore) Insert(ctx context.Context, workOrder string, recs []model.RawRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, 0, len(recs))
	for _, r := range recs {
		doc, err := bson.Marshal(r)
		if err != nil {
			return err
		}
		var m bson.M
		if err := bson.Unmarshal(doc, &m); err != nil {
			return err
		}
		m["work_order"] = workOrder
		docs = append(docs, m)
	}
	_, err := s.coll.InsertMany(ctx, docs)
	return err
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// fromDocument routes a document through the JSON decoder so that loosely
// typed fields get the same coercion as JSON exports.
func fromDocument(doc bson.Raw) (model.RawRecord, error) {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return model.RawRecord{}, err
	}
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return model.RawRecord{}, err
	}
	rec := w.toRaw()
	if rec.ID == "" {
		if oid, ok := doc.Lookup("_id").ObjectIDOK(); ok {
			rec.ID = oid.Hex()
		}
	}
	return rec, nil
}
