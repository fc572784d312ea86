package memory_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/knoguchi/omnirag/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMessagesAndGetHistory(t *testing.T) {
	store := memory.NewStore(10, time.Hour)
	defer store.Close()

	store.AddUserMessage("u1", "hello")
	store.AddAssistantMessage("u1", "hi there")

	history := store.GetHistory("u1")
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi there", history[1].Content)
}

func TestHistoryTrimsToMaxMessages(t *testing.T) {
	store := memory.NewStore(3, time.Hour)
	defer store.Close()

	for i := 0; i < 5; i++ {
		store.AddUserMessage("u1", "msg")
	}

	history := store.GetHistory("u1")
	assert.Len(t, history, 3)
}

func TestFactExtractionOnTriggerWord(t *testing.T) {
	store := memory.NewStore(10, time.Hour)
	defer store.Close()

	store.AddUserMessage("u1", "I always drink coffee in the morning")
	store.AddUserMessage("u1", "the weather is nice today")

	rec, ok := store.GetRecord("u1")
	require.True(t, ok)
	require.Len(t, rec.Facts, 1)
	assert.Contains(t, rec.Facts[0], "coffee")
}

func TestClearUserRemovesEverything(t *testing.T) {
	store := memory.NewStore(10, time.Hour)
	defer store.Close()

	store.AddUserMessage("u1", "I prefer dark mode")
	store.ClearUser("u1")

	_, ok := store.GetRecord("u1")
	assert.False(t, ok)
}

func TestNoteTopicDedupesAndCaps(t *testing.T) {
	store := memory.NewStore(10, time.Hour)
	defer store.Close()

	store.NoteTopic("u1", "golang")
	store.NoteTopic("u1", "golang")
	store.NoteTopic("u1", "rag")

	rec, ok := store.GetRecord("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"golang", "rag"}, rec.RecentTopics)

	for i := 0; i < 12; i++ {
		store.NoteTopic("u1", fmt.Sprintf("topic-%d", i))
	}
	rec, ok = store.GetRecord("u1")
	require.True(t, ok)
	assert.Len(t, rec.RecentTopics, 10)
	assert.Equal(t, "topic-11", rec.RecentTopics[9])
}
