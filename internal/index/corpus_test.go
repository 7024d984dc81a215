package index

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	corpusForenames = []string{"jean", "pierre", "nicolas", "guillaume", "jacques", "robert", "thomas", "hugues", "denis", "etienne"}
	corpusSurnames  = []string{
		"morain", "gioni", "cousinot", "baye", "fauquembergue", "maupoint", "juvenal", "chartier", "tuetey", "lefevre",
		"blondel", "boulanger", "desmarest", "chastellain", "basin", "monstrelet", "cagny", "bueil", "gerson", "pisan",
	}
)

// buildCorpus returns one document per forename and surname pair. Document ids start at 1
// and every pair is unique, so "+forename +surname" identifies exactly one document.
func buildCorpus() []Document {
	docs := make([]Document, 0, len(corpusForenames)*len(corpusSurnames))
	for s, surname := range corpusSurnames {
		for f, forename := range corpusForenames {
			id := int64(s*len(corpusForenames) + f + 1)
			docs = append(docs, DocumentFromFields(
				id,
				fmt.Sprintf("person_%d", id),
				forename+" "+surname,
				forename,
				surname,
			))
		}
	}
	return docs
}

// corpusIDs returns the ids of every document with the given surname.
func corpusIDs(surname string) []string {
	var out []string
	for s, name := range corpusSurnames {
		if name != surname {
			continue
		}
		for f := range corpusForenames {
			out = append(out, strconv.Itoa(s*len(corpusForenames)+f+1))
		}
	}
	return out
}

// substitute replaces n letters of term starting at its third rune, giving distance n.
func substitute(term string, n int) string {
	r := []rune(term)
	for i := 2; i < 2+n && i < len(r); i++ {
		if r[i] == 'x' {
			r[i] = 'y'
		} else {
			r[i] = 'x'
		}
	}
	return string(r)
}

func newCorpusHandle(tb testing.TB) *Handle {
	tb.Helper()
	s, err := CreateStore(tb.TempDir() + "/index")
	require.NoError(tb, err)
	h, err := s.CreateIndex(PersonSchema(), Options{WriteLockTimeout: time.Second})
	require.NoError(tb, err)
	tb.Cleanup(func() { h.Close() })
	docs := buildCorpus()
	n, err := Populate(context.Background(), h, SliceIterator(docs))
	require.NoError(tb, err)
	require.Equal(tb, len(docs), n)
	return h
}

func TestCorpus(t *testing.T) {
	h := newCorpusHandle(t)
	ctx := context.Background()

	count, err := h.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, len(corpusForenames)*len(corpusSurnames), count)

	for s, surname := range corpusSurnames {
		t.Run(surname, func(t *testing.T) {
			hits, err := h.Search(ctx, Query{Text: surname, Type: SearchExact})
			require.NoError(t, err)
			assert.ElementsMatch(t, corpusIDs(surname), ids(hits), "exact surname")

			hits, err = h.Search(ctx, Query{Text: "+" + corpusForenames[0] + " +" + surname, Type: SearchExact})
			require.NoError(t, err)
			assert.Equal(t, []string{strconv.Itoa(s*len(corpusForenames) + 1)}, ids(hits), "required forename and surname")

			hits, err = h.Search(ctx, Query{Text: substitute(surname, 1), Type: SearchFuzzy})
			require.NoError(t, err)
			assert.Subset(t, ids(hits), corpusIDs(surname), "one typo, fuzzy")

			hits, err = h.Search(ctx, Query{Text: substitute(surname, 3), Type: SearchVeryFuzzy})
			require.NoError(t, err)
			assert.Subset(t, ids(hits), corpusIDs(surname), "three typos, very fuzzy")
		})
	}
}

func TestCorpus_RestrictedFields(t *testing.T) {
	h := newCorpusHandle(t)
	hits, err := h.Search(context.Background(), Query{
		Text:   "jean",
		Type:   SearchExact,
		Fields: []string{FieldNameSurnameAltLabels},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func BenchmarkLevenshteinDistance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = levenshteinDistance("fauquembergue", "fauqembergues")
	}
}

func benchmarkSearch(b *testing.B, typ SearchType, text string) {
	h := newCorpusHandle(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Search(ctx, Query{Text: text, Type: typ}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearchExact(b *testing.B) {
	benchmarkSearch(b, SearchExact, "jean morain")
}

func BenchmarkSearchFuzzy(b *testing.B) {
	benchmarkSearch(b, SearchFuzzy, "jeam morian")
}

func BenchmarkSearchVeryFuzzy(b *testing.B) {
	benchmarkSearch(b, SearchVeryFuzzy, "jxxm mxxxin")
}
