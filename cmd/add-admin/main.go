// Command add-admin provisions a back-office account in the active
// backend. Passwords are hashed with bcrypt before they leave the process.
package main

import (
	"context"
	"flag"
	"time"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/istm-portal/backend/log"
	"github.com/istm-portal/backend/store/pgstore"
)

func main() {
	var backend, mongoURI, mongoDB, pgURL, username, password string
	flag.StringVar(&backend, "backend", "postgres", "data backend: mongo or postgres")
	flag.StringVar(&mongoURI, "mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flag.StringVar(&mongoDB, "mongo-db", "istm_portal", "MongoDB database name")
	flag.StringVar(&pgURL, "pg-url", "", "Postgres connection URL")
	flag.StringVar(&username, "username", "", "account name")
	flag.StringVar(&password, "password", "", "account password")
	flag.Parse()

	if username == "" || password == "" {
		log.Fatal("add-admin: -username and -password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("add-admin.hash:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch backend {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			log.Fatal("add-admin.mongo.connect:", err)
		}
		defer client.Disconnect(context.Background())

		_, err = client.Database(mongoDB).Collection("admin_accounts").UpdateOne(ctx,
			bson.M{"_id": username},
			bson.M{"$set": bson.M{"passwordHash": hash}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			log.Fatal("add-admin.mongo.upsert:", err)
		}

	case "postgres":
		st, err := pgstore.Open(pgURL)
		if err != nil {
			log.Fatal("add-admin.pg.open:", err)
		}
		defer st.Close(context.Background())

		_, err = st.DB().ExecContext(ctx, `
			INSERT INTO admin_account (username, password_hash)
			VALUES ($1, $2)
			ON CONFLICT (username) DO UPDATE SET password_hash = $2`,
			username, hash,
		)
		if err != nil {
			log.Fatal("add-admin.pg.upsert:", err)
		}

	default:
		log.Fatalf("add-admin: unknown backend %q", backend)
	}

	log.Infof("account %q ready", username)
}
