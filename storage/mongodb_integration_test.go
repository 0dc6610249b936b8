package storage

import (
	"context"
	"testing"
	"time"

	testutil "elisedb/util/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupMongoAdmin(t *testing.T, dbName string) (*MongoDB, *MongoAdmin) {
	t.Helper()
	mc := testutil.StartMongo(t)

	mongoDB, err := NewMongoDB(context.Background(), MongoOptions{
		URI:              mc.URI,
		ConnectTimeout:   30 * time.Second,
		OperationTimeout: 30 * time.Second,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongoDB.Close(context.Background()) })

	return mongoDB, mongoDB.Admin(dbName)
}

func TestMongoAdmin_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mongoDB, admin := setupMongoAdmin(t, "elise_db")
	require.NoError(t, mongoDB.HealthCheck(ctx))
	assert.Equal(t, "elise_db", admin.Database())

	t.Run("create user then duplicate", func(t *testing.T) {
		user := UserSpec{
			Username: "elise",
			Password: "elise_can_open_doors",
			Roles:    []RoleGrant{{Role: "readWrite", DB: "elise_db"}},
		}
		require.NoError(t, admin.CreateUser(ctx, user))

		err := admin.CreateUser(ctx, user)
		assert.ErrorIs(t, err, ErrDuplicateUser)

		users, err := admin.UsersInfo(ctx, "elise")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "elise", users[0].User)
		assert.Equal(t, "elise_db", users[0].DB)
		assert.Equal(t, []RoleGrant{{Role: "readWrite", DB: "elise_db"}}, users[0].Roles)
	})

	t.Run("create collection then duplicate", func(t *testing.T) {
		require.NoError(t, admin.CreateCollection(ctx, "consultations"))

		err := admin.CreateCollection(ctx, "consultations")
		assert.ErrorIs(t, err, ErrCollectionExists)

		names, err := admin.CollectionNames(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "consultations")

		count, err := admin.CountDocuments(ctx, "consultations")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("unique index enforces uniqueness", func(t *testing.T) {
		name, err := admin.CreateIndex(ctx, IndexSpec{Collection: "consultations", Field: "consultation_id", Unique: true})
		require.NoError(t, err)
		assert.Equal(t, "consultation_id_1", name)

		indexes, err := admin.Indexes(ctx, "consultations")
		require.NoError(t, err)
		var found bool
		for _, idx := range indexes {
			if idx.KeySignature() == "consultation_id:1" {
				found = true
				assert.True(t, idx.IsUnique())
			}
		}
		assert.True(t, found, "unique index not listed")

		require.NoError(t, admin.InsertOne(ctx, "consultations", bson.M{"consultation_id": "C1"}))
		require.NoError(t, admin.InsertOne(ctx, "consultations", bson.M{"consultation_id": "C2"}))
		err = admin.InsertOne(ctx, "consultations", bson.M{"consultation_id": "C1"})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("conflicting index definition", func(t *testing.T) {
		_, err := admin.CreateIndex(ctx, IndexSpec{Collection: "consultations", Field: "consultation_id", Unique: false})
		assert.ErrorIs(t, err, ErrIndexConflict)
	})

	t.Run("unique index over duplicates", func(t *testing.T) {
		require.NoError(t, admin.InsertOne(ctx, "scratch", bson.M{"file_id": "F1"}))
		require.NoError(t, admin.InsertOne(ctx, "scratch", bson.M{"file_id": "F1"}))

		_, err := admin.CreateIndex(ctx, IndexSpec{Collection: "scratch", Field: "file_id", Unique: true})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})
}

func TestMongoAdmin_Integration_LogsOperationsAtDebug(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := testutil.StartMongo(t)

	core, logs := observer.New(zapcore.DebugLevel)
	mongoDB, err := NewMongoDB(ctx, MongoOptions{
		URI:              mc.URI,
		ConnectTimeout:   30 * time.Second,
		OperationTimeout: 30 * time.Second,
	}, zap.New(core).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongoDB.Close(context.Background()) })

	admin := mongoDB.Admin("elise_db")
	require.NoError(t, admin.CreateUser(ctx, UserSpec{
		Username: "elise",
		Password: "elise_can_open_doors",
		Roles:    []RoleGrant{{Role: "readWrite", DB: "elise_db"}},
	}))
	require.NoError(t, admin.CreateCollection(ctx, "temp_files"))
	_, err = admin.CreateIndex(ctx, IndexSpec{Collection: "temp_files", Field: "file_id", Unique: true})
	require.NoError(t, err)

	for _, msg := range []string{"User created", "Collection created", "Index created"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level, msg)
	}
}
