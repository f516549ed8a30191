package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/processor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	LabelsCollection      = "labels"
	CorrectionsCollection = "corrections"
	InvoicesCollection    = "invoices"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Info().Str("database", configs.MONGO_DB_NAME).Msg("connected to MongoDB")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("MongoDB disconnect failed")
		return
	}
	log.Info().Msg("MongoDB connection closed")
}

// LabelRecord is one labeled product photo (labels.csv row in the dataset export)
type LabelRecord struct {
	ID          string                 `bson:"_id" json:"id"`
	SessionID   string                 `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Label       string                 `bson:"label" json:"label"`
	Class       string                 `bson:"class" json:"class"`
	FileName    string                 `bson:"file_name" json:"file_name"`
	RelPath     string                 `bson:"rel_path" json:"saved_relpath"`
	ObjectKey   string                 `bson:"object_key,omitempty" json:"object_key,omitempty"`
	OCRText     string                 `bson:"ocr_text,omitempty" json:"ocr_text,omitempty"`
	Confidence  float64                `bson:"confidence" json:"confidence"`
	Method      string                 `bson:"method" json:"method"` // auto, ocr_line, fallback, manual, corrected
	NeedsReview bool                   `bson:"needs_review" json:"needs_review"`
	Reviewed    bool                   `bson:"reviewed" json:"reviewed"`
	Suggestions []processor.Suggestion `bson:"suggestions,omitempty" json:"suggestions,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt   *time.Time             `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// CorrectionRecord is a persisted bad->good OCR replacement
type CorrectionRecord struct {
	ID        string    `bson:"_id" json:"id"`
	Bad       string    `bson:"bad" json:"bad"`
	Good      string    `bson:"good" json:"good"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// InvoiceRecord keeps what an invoice upload produced, for audit
type InvoiceRecord struct {
	ID             string    `bson:"_id" json:"id"`
	SessionID      string    `bson:"session_id" json:"session_id"`
	FileName       string    `bson:"file_name" json:"file_name"`
	Engine         string    `bson:"engine" json:"engine"`
	Lines          []string  `bson:"lines" json:"lines"`
	NormalizedText string    `bson:"normalized_text" json:"normalized_text"`
	Structured     string    `bson:"structured,omitempty" json:"structured,omitempty"`
	Items          []string  `bson:"items" json:"items"`
	ItemsSource    string    `bson:"items_source" json:"items_source"`
	UploadPath     string    `bson:"upload_path,omitempty" json:"upload_path,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// MongoStore persists labels, corrections and invoices
type MongoStore struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewMongoStore wraps an open database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, timeout: 5 * time.Second}
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// SaveLabel inserts a label record, assigning ID and CreatedAt when empty.
func (s *MongoStore) SaveLabel(ctx context.Context, rec *LabelRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.Collection(LabelsCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to save label: %w", err)
	}
	return nil
}

// GetLabel retrieves one label record by id
func (s *MongoStore) GetLabel(ctx context.Context, id string) (*LabelRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec LabelRecord
	err := s.db.Collection(LabelsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query label: %w", err)
	}
	return &rec, nil
}

// ListLabels returns label records oldest first. A zero limit means all.
func (s *MongoStore) ListLabels(ctx context.Context, limit int64) ([]LabelRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.db.Collection(LabelsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer cursor.Close(ctx)

	results := make([]LabelRecord, 0)
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateLabel applies a human correction: new label and location, marked reviewed.
func (s *MongoStore) UpdateLabel(ctx context.Context, id string, moved SavedImage, label, objectKey string) (*LabelRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"label":        label,
		"class":        moved.Class,
		"file_name":    moved.FileName,
		"rel_path":     moved.RelPath,
		"object_key":   objectKey,
		"method":       "corrected",
		"needs_review": false,
		"reviewed":     true,
		"updated_at":   now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec LabelRecord
	err := s.db.Collection(LabelsCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update label: %w", err)
	}
	return &rec, nil
}

// SaveCorrection stores a correction; an existing mapping for the same bad
// text is replaced.
func (s *MongoStore) SaveCorrection(ctx context.Context, bad, good string) (*CorrectionRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec := CorrectionRecord{ID: uuid.NewString(), Bad: bad, Good: good, CreatedAt: time.Now().UTC()}
	update := bson.M{
		"$set":         bson.M{"good": good},
		"$setOnInsert": bson.M{"_id": rec.ID, "created_at": rec.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	err := s.db.Collection(CorrectionsCollection).FindOneAndUpdate(ctx, bson.M{"bad": bad}, update, opts).Decode(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to save correction: %w", err)
	}
	return &rec, nil
}

// ListCorrections returns corrections in the order they were first added.
func (s *MongoStore) ListCorrections(ctx context.Context) ([]CorrectionRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(CorrectionsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer cursor.Close(ctx)

	results := make([]CorrectionRecord, 0)
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SaveInvoice stores an invoice audit record.
func (s *MongoStore) SaveInvoice(ctx context.Context, rec *InvoiceRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.Collection(InvoicesCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

// ToCorrections converts stored records into matcher input, keeping order.
func ToCorrections(records []CorrectionRecord) []processor.Correction {
	out := make([]processor.Correction, 0, len(records))
	for _, r := range records {
		out = append(out, processor.Correction{Bad: r.Bad, Good: r.Good})
	}
	return out
}
