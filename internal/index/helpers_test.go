package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := CreateStore(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	return s
}

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	s := newTestStore(t)
	h, err := s.CreateIndex(PersonSchema(), Options{WriteLockTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func jeanMorain() Document {
	return DocumentFromFields(1, "person_endp_abc", "Jean Morain", "jehan;johan", "morain")
}

func sampleDocs() []Document {
	return []Document{
		jeanMorain(),
		DocumentFromFields(2, "person_2", "Jean Gioni", "jean;iohannes", "gioni;gieno"),
		DocumentFromFields(3, "person_3", "Pierre Morin", "pierre;petrus", "morin;moryn"),
		DocumentFromFields(4, "person_4", "Nicolas de Baye", "nicolas;nicholas", "de baye"),
		DocumentFromFields(5, "person_5", "Guillaume Cousinot", "guillaume;guillelmus", "cousinot"),
	}
}

func populated(t *testing.T, docs []Document) *Handle {
	t.Helper()
	h := newTestHandle(t)
	n, err := Populate(context.Background(), h, SliceIterator(docs))
	require.NoError(t, err)
	require.Equal(t, len(docs), n)
	return h
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
