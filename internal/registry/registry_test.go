package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	r, err := Open(":memory:", nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "refund.txt", 3, []string{"hr", "finance"}))
	require.NoError(t, r.Record(ctx, "shipping.txt", 5, nil))

	docs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	bySource := map[string]Document{}
	for _, d := range docs {
		bySource[d.Source] = d
	}
	assert.Equal(t, 3, bySource["refund.txt"].ChunkCount)
	assert.Equal(t, []string{"hr", "finance"}, bySource["refund.txt"].AccessRoles())
	assert.Nil(t, bySource["shipping.txt"].AccessRoles())

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDocumentJSONCarriesAccessRoles(t *testing.T) {
	t.Parallel()

	doc := Document{ID: 1, Source: "refund.txt", ChunkCount: 3, Roles: "hr,finance"}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"access_roles":["hr","finance"]`)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"hr", "finance"}, back.AccessRoles())
	assert.Equal(t, "refund.txt", back.Source)
}

func TestOpenPersistsToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	r, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Record(ctx, "a.txt", 1, nil))

	// 重新打开,数据仍在
	r2, err := Open(path, nil)
	require.NoError(t, err)

	n, err := r2.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
