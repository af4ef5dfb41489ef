package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/config"
	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// mongoAttendee is the stored document shape.
type mongoAttendee struct {
	ID            string `bson:"_id"`
	model.Profile `bson:",inline"`
	CodePayload   string     `bson:"code_payload"`
	QRCodeURL     string     `bson:"qr_code_url"`
	RegisteredAt  time.Time  `bson:"registered_at"`
	CheckedInAt   *time.Time `bson:"checked_in_at"`
}

func toMongo(a model.Attendee) mongoAttendee {
	return mongoAttendee{
		ID:           a.ID,
		Profile:      a.Profile,
		CodePayload:  a.CodePayload,
		QRCodeURL:    a.QRCodeURL,
		RegisteredAt: a.RegisteredAt.UTC(),
		CheckedInAt:  a.CheckedInAt,
	}
}

func (d mongoAttendee) attendee() *model.Attendee {
	a := &model.Attendee{
		ID:           d.ID,
		Profile:      d.Profile,
		CodePayload:  d.CodePayload,
		QRCodeURL:    d.QRCodeURL,
		RegisteredAt: d.RegisteredAt.UTC(),
	}
	if d.CheckedInAt != nil {
		t := d.CheckedInAt.UTC()
		a.CheckedInAt = &t
	}
	return a
}

// MongoStore keeps one document per attendee.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects, verifies the primary is reachable and ensures the
// listing index exists.
func OpenMongo(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "registered_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create registered_at index: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

// Create inserts one document.
func (s *MongoStore) Create(ctx context.Context, a model.Attendee) error {
	if _, err := s.coll.InsertOne(ctx, toMongo(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert attendee: %w", err)
	}
	return nil
}

// CreateBatch inserts all documents in a multi-document transaction, which
// requires a replica set deployment.
func (s *MongoStore) CreateBatch(ctx context.Context, as []model.Attendee) error {
	if len(as) == 0 {
		return nil
	}
	docs := make([]any, 0, len(as))
	for _, a := range as {
		docs = append(docs, toMongo(a))
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return s.coll.InsertMany(sc, docs)
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert attendee batch: %w", err)
	}
	return nil
}

// Get returns one attendee or ErrNotFound.
func (s *MongoStore) Get(ctx context.Context, id string) (*model.Attendee, error) {
	var doc mongoAttendee
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return doc.attendee(), nil
}

// List returns attendees newest first.
func (s *MongoStore) List(ctx context.Context) ([]model.Attendee, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "registered_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Attendee
	for cur.Next(ctx) {
		var doc mongoAttendee
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode attendee: %w", err)
		}
		out = append(out, *doc.attendee())
	}
	return out, cur.Err()
}

// MarkCheckedIn relies on findAndModify being atomic for a single document:
// the filter only matches while checked_in_at is null, so exactly one
// concurrent caller gets the document back.
func (s *MongoStore) MarkCheckedIn(ctx context.Context, id string, at time.Time) (*model.Attendee, bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "checked_in_at", Value: nil},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "checked_in_at", Value: bson.D{
				{Key: "$max", Value: bson.A{at.UTC(), "$registered_at"}},
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoAttendee
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.attendee(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("set checked_in_at: %w", err)
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// SetCheckedIn overwrites checked_in_at; nil clears it.
func (s *MongoStore) SetCheckedIn(ctx context.Context, id string, at *time.Time) (*model.Attendee, error) {
	var value any
	if at != nil {
		value = at.UTC()
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "checked_in_at", Value: value}}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoAttendee
	err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update checked_in_at: %w", err)
	}
	return doc.attendee(), nil
}

// Ping verifies the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
