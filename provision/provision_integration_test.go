package provision

import (
	"bytes"
	"context"
	"testing"
	"time"

	"elisedb/schema"
	"elisedb/storage"
	testutil "elisedb/util/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func connect(t *testing.T, uri string) *storage.MongoDB {
	t.Helper()
	mongoDB, err := storage.NewMongoDB(context.Background(), storage.MongoOptions{
		URI:              uri,
		ConnectTimeout:   30 * time.Second,
		OperationTimeout: 30 * time.Second,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongoDB.Close(context.Background()) })
	return mongoDB
}

func TestProcedure_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := testutil.StartMongo(t)
	mongoDB := connect(t, mc.URI)
	plan := schema.Default()

	t.Run("fresh run establishes the layout", func(t *testing.T) {
		var out bytes.Buffer
		p := New(mongoDB.Admin(""), plan, testSecret, WithOutput(&out))

		report, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, CompletionMessage+"\n", out.String())
		assert.Equal(t, StateCompleted, p.State())
		assert.Equal(t, "elise_db", report.Database)

		v, err := Verify(ctx, mongoDB.Admin("elise_db"), plan, WithExpectEmpty())
		require.NoError(t, err)
		assert.True(t, v.OK(), "unexpected findings: %v", v.Findings)
	})

	t.Run("user holds only readWrite on elise_db", func(t *testing.T) {
		users, err := mongoDB.Admin("elise_db").UsersInfo(ctx, "elise")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, []storage.RoleGrant{{Role: "readWrite", DB: "elise_db"}}, users[0].Roles)
	})

	t.Run("collections exist and are empty", func(t *testing.T) {
		admin := mongoDB.Admin("elise_db")
		names, err := admin.CollectionNames(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"patients", "consultations", "temp_files"}, names)

		for _, name := range names {
			count, err := admin.CountDocuments(ctx, name)
			require.NoError(t, err)
			assert.Zero(t, count, name)
		}
	})

	t.Run("duplicate consultation_id rejected", func(t *testing.T) {
		admin := mongoDB.Admin("elise_db")
		require.NoError(t, admin.InsertOne(ctx, schema.ConsultationsCollection, schema.Consultation{ConsultationID: "C1", UserID: "u1", PatientID: "p1"}))
		require.NoError(t, admin.InsertOne(ctx, schema.ConsultationsCollection, schema.Consultation{ConsultationID: "C2", UserID: "u1", PatientID: "p1"}))

		err := admin.InsertOne(ctx, schema.ConsultationsCollection, schema.Consultation{ConsultationID: "C1", UserID: "u2", PatientID: "p2"})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		count, err := admin.CountDocuments(ctx, schema.ConsultationsCollection)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("duplicate file_id rejected", func(t *testing.T) {
		admin := mongoDB.Admin("elise_db")
		require.NoError(t, admin.InsertOne(ctx, schema.TempFilesCollection, schema.TempFile{FileID: "F1", Filename: "a.pdf"}))

		err := admin.InsertOne(ctx, schema.TempFilesCollection, schema.TempFile{FileID: "F1", Filename: "b.pdf"})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("patients accept duplicate documents", func(t *testing.T) {
		admin := mongoDB.Admin("elise_db")
		doc := bson.M{"id": "P1", "first_name": "Ana"}
		require.NoError(t, admin.InsertOne(ctx, schema.PatientsCollection, doc))
		require.NoError(t, admin.InsertOne(ctx, schema.PatientsCollection, bson.M{"id": "P1", "first_name": "Ana"}))
	})

	t.Run("second run fails at create-user", func(t *testing.T) {
		var out bytes.Buffer
		p := New(mongoDB.Admin(""), plan, testSecret, WithOutput(&out))

		_, err := p.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrDuplicateUser)
		assert.Contains(t, err.Error(), `create-user "elise"`)
		assert.Equal(t, StepCreateUser, p.FailedStep())
		assert.Empty(t, out.String())

		users, err := mongoDB.Admin("elise_db").UsersInfo(ctx, "elise")
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})
}

func TestProcedure_Integration_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := testutil.StartMongo(t)
	mongoDB := connect(t, mc.URI)

	var out bytes.Buffer
	_, err := New(mongoDB.Admin(""), schema.Default(), testSecret, WithOutput(&out)).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, CompletionMessage+"\n", out.String())

	admin := mongoDB.Admin("elise_db")
	require.NoError(t, admin.InsertOne(ctx, schema.ConsultationsCollection, bson.M{"consultation_id": "C1"}))
	err = admin.InsertOne(ctx, schema.ConsultationsCollection, bson.M{"consultation_id": "C1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
