package provision

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"elisedb/schema"
	"elisedb/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// provisioned returns a mock server after a successful run of the default plan
func provisioned(t *testing.T) *storage.MockAdmin {
	t.Helper()
	admin := storage.NewMockAdmin()
	_, err := New(admin, schema.Default(), testSecret, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)
	return admin
}

func TestVerify_AfterRun(t *testing.T) {
	admin := provisioned(t)

	v, err := Verify(context.Background(), admin, schema.Default(), WithExpectEmpty())
	require.NoError(t, err)
	assert.True(t, v.OK(), "unexpected findings: %v", v.Findings)
	assert.Equal(t, "elise_db", v.Database)
}

func TestVerify_EmptyServer(t *testing.T) {
	admin := storage.NewMockAdmin()
	admin.SelectDatabase("elise_db")

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.False(t, v.OK())

	assert.Contains(t, v.Findings, Finding{Kind: FindingUser, Target: "elise", Message: "does not exist"})
	assert.Contains(t, v.Findings, Finding{Kind: FindingCollection, Target: "patients", Message: "does not exist"})
	assert.Contains(t, v.Findings, Finding{
		Kind: FindingIndex, Target: "temp_files.file_id", Message: `collection "temp_files" does not exist`,
	})
	assert.Len(t, v.Findings, 6)
}

func TestVerify_ExtraRole(t *testing.T) {
	admin := provisioned(t)
	admin.AddUser("elise_db", storage.UserInfo{
		User: "elise",
		DB:   "elise_db",
		Roles: []storage.RoleGrant{
			{Role: "readWrite", DB: "elise_db"},
			{Role: "read", DB: "admin"},
		},
	})

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.Equal(t, []Finding{
		{Kind: FindingUser, Target: "elise", Message: "has unplanned role read@admin"},
	}, v.Findings)
}

func TestVerify_MissingRole(t *testing.T) {
	admin := provisioned(t)
	admin.AddUser("elise_db", storage.UserInfo{User: "elise", DB: "elise_db", Roles: []storage.RoleGrant{{Role: "read", DB: "elise_db"}}})

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.Equal(t, []Finding{
		{Kind: FindingUser, Target: "elise", Message: "missing role readWrite@elise_db"},
		{Kind: FindingUser, Target: "elise", Message: "has unplanned role read@elise_db"},
	}, v.Findings)
}

func TestVerify_NonUniqueIndex(t *testing.T) {
	admin := storage.NewMockAdmin()
	plan := schema.Default()
	plan.Indexes[1].Unique = false
	_, err := New(admin, plan, testSecret, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	require.Len(t, v.Findings, 1)
	assert.Equal(t, FindingIndex, v.Findings[0].Kind)
	assert.Equal(t, "temp_files.file_id", v.Findings[0].Target)
	assert.Equal(t, `index "file_id_1" has unique=false, want unique=true`, v.Findings[0].Message)
}

func TestVerify_MissingIndex(t *testing.T) {
	admin := storage.NewMockAdmin()
	plan := schema.Default()
	plan.Indexes = plan.Indexes[:1]
	_, err := New(admin, plan, testSecret, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.Equal(t, []Finding{
		{Kind: FindingIndex, Target: "temp_files.file_id", Message: "no index on {file_id:1}"},
	}, v.Findings)
}

func TestVerify_IndexMatchedByKeyNotName(t *testing.T) {
	admin := storage.NewMockAdmin()
	plan := schema.Default()
	plan.Indexes[0].Name = "consultation_unique"
	_, err := New(admin, plan, testSecret, WithOutput(&bytes.Buffer{})).Run(context.Background())
	require.NoError(t, err)

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.True(t, v.OK(), "unexpected findings: %v", v.Findings)
}

func TestVerify_ExpectEmpty(t *testing.T) {
	admin := provisioned(t)
	admin.AddDocuments("patients", 3)

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.True(t, v.OK())

	v, err = Verify(context.Background(), admin, schema.Default(), WithExpectEmpty())
	require.NoError(t, err)
	assert.Equal(t, []Finding{
		{Kind: FindingCollection, Target: "patients", Message: "holds 3 documents, want none"},
	}, v.Findings)
}

func TestVerify_UnplannedCollection(t *testing.T) {
	admin := provisioned(t)
	admin.AddDocuments("audit", 1)

	v, err := Verify(context.Background(), admin, schema.Default())
	require.NoError(t, err)
	assert.Equal(t, []Finding{
		{Kind: FindingCollection, Target: "audit", Message: "is not part of the plan"},
	}, v.Findings)
}

func TestVerify_ReadFailure(t *testing.T) {
	admin := provisioned(t)
	admin.Fail["list-indexes consultations"] = storage.ErrConnectivity

	v, err := Verify(context.Background(), admin, schema.Default())
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, errors.Is(err, storage.ErrConnectivity))
	assert.Contains(t, err.Error(), `failed to inspect indexes of "consultations"`)
}

func TestFinding_String(t *testing.T) {
	f := Finding{Kind: FindingIndex, Target: "temp_files.file_id", Message: "no index on {file_id:1}"}
	assert.Equal(t, "index temp_files.file_id: no index on {file_id:1}", f.String())
}
