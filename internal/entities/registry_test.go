package entities

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAndLookupExact(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), ".entity-registry.json"))
	idx := r.Add(Entity{Type: TypeCharacter, Name: "Eira", FirstChapter: 1, LastChapter: 1, MentionCount: 1})

	got, ok := r.LookupExact(TypeCharacter, "eira")
	require.True(t, ok)
	require.Equal(t, idx, got)

	_, ok = r.LookupExact(TypePlace, "eira")
	require.False(t, ok, "type must scope the lookup")
}

func TestRegistry_AliasLookup(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), ".entity-registry.json"))
	idx := r.Add(Entity{Type: TypeCharacter, Name: "Eira Lightbringer"})
	require.NoError(t, r.AddAlias(idx, "Eira"))

	got, ok := r.LookupExact(TypeCharacter, "eira")
	require.True(t, ok)
	require.Equal(t, idx, got)
}

func TestRegistry_MergeMention(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), ".entity-registry.json"))
	idx := r.Add(Entity{Type: TypePlace, Name: "The Hollow", FirstChapter: 2, LastChapter: 2, Appearances: []int{2}})

	require.NoError(t, r.MergeMention(idx, 5, &Enrichment{Detail: "a cavern beneath the city", SourceChapter: 5}))

	e, ok := r.Get(idx)
	require.True(t, ok)
	require.Equal(t, 1, e.MentionCount)
	require.Equal(t, 5, e.LastChapter)
	require.Equal(t, []int{2, 5}, e.Appearances)
	require.Len(t, e.Enrichments, 1)
	require.Equal(t, "a cavern beneath the city", e.Enrichments[0].Detail)
}

func TestRegistry_Upsert_NewEntityWhenNoneExist(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), ".entity-registry.json"))
	idx, isNew, err := r.Upsert(context.Background(), nil, Candidate{
		Type: TypeCreature, Name: "Dragon", Description: "green scales", Chapter: 1, Quote: "a great dragon",
	})
	require.NoError(t, err)
	require.True(t, isNew)

	e, ok := r.Get(idx)
	require.True(t, ok)
	require.Equal(t, "green scales", e.Description)
	require.Equal(t, []int{1}, e.Appearances)
}

func TestRegistry_Upsert_MergesExactNameMatch(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), ".entity-registry.json"))
	idx, _, err := r.Upsert(context.Background(), nil, Candidate{
		Type: TypeCreature, Name: "Dragon", Description: "green scales", Chapter: 1,
	})
	require.NoError(t, err)

	idx2, isNew, err := r.Upsert(context.Background(), nil, Candidate{
		Type: TypeCreature, Name: "Dragon", Description: "emerald eyes", Chapter: 2,
	})
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, idx, idx2)

	e, _ := r.Get(idx)
	require.Equal(t, 2, e.MentionCount)
	require.Contains(t, e.Description, "green scales")
	require.Contains(t, e.Description, "emerald eyes")
	require.Equal(t, []int{1, 2}, e.Appearances)
}

func TestRegistry_GetMentionsAndEnrichPrompt(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), ".entity-registry.json"))
	r.Add(Entity{Type: TypeCreature, Name: "Dragon", Description: "a fire-breathing wyrm"})

	mentions := r.GetMentions("The dragon circled overhead.")
	require.Len(t, mentions, 1)
	require.Equal(t, "Dragon", mentions[0].Name)

	enriched := r.EnrichPrompt("The dragon circled overhead.")
	require.Contains(t, enriched, "Known character details:")
	require.Contains(t, enriched, "a fire-breathing wyrm")
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".entity-registry.json")
	r := New(path)
	r.Add(Entity{Type: TypeCreature, Name: "Dragon", MentionCount: 3})
	require.NoError(t, r.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	all := loaded.All()
	require.Len(t, all, 1)
	require.Equal(t, "Dragon", all[0].Name)

	_, ok := loaded.LookupExact(TypeCreature, "dragon")
	require.True(t, ok)
}
