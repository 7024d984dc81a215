package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStore_ReprovisionsExistingPath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stale.txt"), []byte("x"), 0o644))

	s, err := CreateStore(root)
	require.NoError(t, err)
	assert.True(t, s.Exists())
	assert.Empty(t, s.Generation())
	_, err = os.Stat(filepath.Join(root, "stale.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCreateStore_RefusesOpenGeneration(t *testing.T) {
	s := newTestStore(t)
	h, err := s.CreateIndex(PersonSchema(), Options{})
	require.NoError(t, err)
	require.NoError(t, h.AddDocument(context.Background(), jeanMorain()))

	_, err = CreateStore(s.Path())
	require.Error(t, err)
	assert.True(t, IsProvisioning(err))
	assert.ErrorIs(t, err, ErrStoreInUse)
	_, statErr := os.Stat(filepath.Join(s.Path(), generationPrefix+h.Generation()))
	assert.NoError(t, statErr)

	require.NoError(t, h.Close())
	fresh, err := CreateStore(s.Path())
	require.NoError(t, err)
	assert.Empty(t, fresh.Generation())
}

func TestCreateStore_EmptyPath(t *testing.T) {
	_, err := CreateStore("")
	assert.True(t, IsProvisioning(err))
}

func TestOpenStore_Missing(t *testing.T) {
	_, err := OpenStore(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "index-create")
}

func TestOpenIndex_NoGeneration(t *testing.T) {
	s := newTestStore(t)
	_, err := s.OpenIndex(Options{})
	assert.True(t, IsNotFound(err))
}

func TestCreateIndex_InvalidSchema(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateIndex(Schema{Name: "bad"}, Options{})
	require.Error(t, err)
	assert.True(t, IsProvisioning(err))
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
	assert.Empty(t, s.Generation())
}

func TestCreateIndex_AfterDestroy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Destroy())
	assert.False(t, s.Exists())
	_, err := s.CreateIndex(PersonSchema(), Options{})
	assert.True(t, IsNotFound(err))
}

func TestStore_ReopenPersistsDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	h, err := s.CreateIndex(PersonSchema(), Options{})
	require.NoError(t, err)
	require.NoError(t, h.AddDocument(ctx, jeanMorain()))
	gen := h.Generation()
	require.NoError(t, h.Close())

	s2, err := OpenStore(s.Path())
	require.NoError(t, err)
	assert.Equal(t, gen, s2.Generation())
	schema, ok := s2.Schema()
	require.True(t, ok)
	assert.Equal(t, PersonSchema(), schema)

	err = WithIndex(s2, Options{}, func(h *Handle) error {
		n, err := h.DocCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
		hits, err := h.Search(ctx, Query{Text: "jean", Type: SearchExact, Fields: []string{FieldNamePrefLabel}})
		require.NoError(t, err)
		assert.Equal(t, []Hit{{ID: "1", IDEndp: "person_endp_abc"}}, hits)
		return nil
	})
	require.NoError(t, err)
}

func TestWithIndex_ClosesOnError(t *testing.T) {
	s := newTestStore(t)
	h, err := s.CreateIndex(PersonSchema(), Options{})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	var inner *Handle
	boom := errors.New("boom")
	err = WithIndex(s, Options{}, func(h *Handle) error {
		inner = h
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = inner.DocCount()
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestCreateIndex_RemovesSupersededGeneration(t *testing.T) {
	s := newTestStore(t)
	h1, err := s.CreateIndex(PersonSchema(), Options{})
	require.NoError(t, err)
	oldDir := h1.Path()
	require.NoError(t, h1.Close())

	h2, err := s.CreateIndex(PersonSchema(), Options{})
	require.NoError(t, err)
	defer h2.Close()

	assert.NotEqual(t, h1.Generation(), h2.Generation())
	assert.Equal(t, h2.Generation(), s.Generation())
	_, err = os.Stat(oldDir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	n, err := h2.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}
