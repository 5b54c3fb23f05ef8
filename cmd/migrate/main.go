// Command migrate copies every collection from the MongoDB backend into
// the Postgres backend, in batches. It is meant to be run once, with the
// portal stopped, when moving a deployment between backends.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/istm-portal/backend/log"
	"github.com/istm-portal/backend/migration"
	"github.com/istm-portal/backend/store/pgstore"
)

func main() {
	var mongoURI, mongoDB, pgURL string
	var batchSize int
	flag.StringVar(&mongoURI, "mongo-uri", os.Getenv("PORTAL_MONGO_URI"), "source MongoDB connection URI")
	flag.StringVar(&mongoDB, "mongo-db", os.Getenv("PORTAL_MONGO_DB"), "source MongoDB database name")
	flag.StringVar(&pgURL, "pg-url", os.Getenv("PORTAL_PG_URL"), "target Postgres connection URL")
	flag.IntVar(&batchSize, "batch-size", migration.DefaultBatchSize, "rows per insert batch")
	flag.Parse()

	if mongoURI == "" || mongoDB == "" || pgURL == "" {
		log.Fatal("migrate: -mongo-uri, -mongo-db and -pg-url are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("migrate.mongo.connect:", err)
	}
	defer client.Disconnect(context.Background())

	// Open brings the target schema up to date before any rows land.
	target, err := pgstore.Open(pgURL)
	if err != nil {
		log.Fatal("migrate.pg.open:", err)
	}
	defer target.Close(context.Background())

	report, err := migration.Run(ctx, client.Database(mongoDB), target.DB(), migration.Options{
		BatchSize: batchSize,
	})
	if err != nil {
		log.Fatal("migrate.run:", err)
	}

	log.Info(report.Forms.String())
	log.Info(report.Submissions.String())
	if report.Partial() {
		log.Warn("migrate: completed with failed batches, see errors above")
		os.Exit(1)
	}
	log.Info("migrate: completed")
}
