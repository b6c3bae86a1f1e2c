package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB keeps one document per ingestion pass.
type MongoDB struct {
	log    *slog.Logger
	client *mongo.Client
	runs   *mongo.Collection
}

func NewMongoDB(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	d := &MongoDB{
		log:    log,
		client: client,
		runs:   client.Database(cfg.Database).Collection(cfg.Collection),
	}

	if err := d.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't create indexes: %w", err)
	}

	return d, nil
}

func (d *MongoDB) createIndexes(ctx context.Context) error {
	_, err := d.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "sources.source_id", Value: 1}, {Key: "started_at", Value: -1}}},
	})
	return err
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// SaveRun stores report under its run id, replacing an earlier save.
func (d *MongoDB) SaveRun(ctx context.Context, report *models.PassReport) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := d.runs.ReplaceOne(ctx, bson.M{"_id": report.RunID}, report, opts)
	if err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	d.log.Debug("run saved", "run_id", report.RunID)
	return nil
}

// LastRun returns the most recent stored report for one source, or nil
// when the source never ran.
func (d *MongoDB) LastRun(ctx context.Context, sourceID string) (*models.SourceReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	var run models.PassReport
	err := d.runs.FindOne(ctx, bson.M{"sources.source_id": sourceID}, opts).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run.Source(sourceID), nil
}
