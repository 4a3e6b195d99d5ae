package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mtorres-dev/apptsync/internal/model"
)

const settingsDocID = "business"

// MongoStore is the primary store adapter. It may be unreachable at any time;
// callers go through the Selector, which catches driver errors and falls back.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{db: client.Database(dbName)}
}

func (s *MongoStore) appointments() *mongo.Collection { return s.db.Collection("appointments") }

func (s *MongoStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var appt model.Appointment
	err := s.appointments().FindOne(ctx, bson.M{"_id": id}).Decode(&appt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *MongoStore) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	cursor, err := s.appointments().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var appts []model.Appointment
	if err := cursor.All(ctx, &appts); err != nil {
		return nil, err
	}
	return appts, nil
}

func (s *MongoStore) PutAppointment(ctx context.Context, appt model.Appointment) error {
	appt = appt.WithoutSyncFlags()
	_, err := s.appointments().ReplaceOne(ctx,
		bson.M{"_id": appt.ID}, appt, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) DeleteAppointment(ctx context.Context, id string) error {
	res, err := s.appointments().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	var c model.Customer
	err := s.db.Collection("customers").FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Customer{}, ErrNotFound
	}
	if err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

func (s *MongoStore) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := s.db.Collection("services").FindOne(ctx, bson.M{"_id": id}).Decode(&svc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Service{}, ErrNotFound
	}
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

type settingsDoc struct {
	ID       string                 `bson:"_id"`
	Settings model.BusinessSettings `bson:"settings"`
}

func (s *MongoStore) SaveSettings(ctx context.Context, settings model.BusinessSettings) error {
	_, err := s.db.Collection("settings").ReplaceOne(ctx,
		bson.M{"_id": settingsDocID},
		settingsDoc{ID: settingsDocID, Settings: settings},
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) LoadSettings(ctx context.Context) (model.BusinessSettings, error) {
	var doc settingsDoc
	err := s.db.Collection("settings").FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.BusinessSettings{}, ErrNotFound
	}
	if err != nil {
		return model.BusinessSettings{}, err
	}
	return doc.Settings, nil
}

var _ Store = (*MongoStore)(nil)
