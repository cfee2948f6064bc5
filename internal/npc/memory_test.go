package npc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRingEvictsOldest(t *testing.T) {
	var m MemoryRing
	for i := 0; i < MemoryCapacity+5; i++ {
		m.Add(InteractionRecord{Tick: uint64(i), Kind: InteractionTalk})
	}

	assert.Equal(t, MemoryCapacity, m.Len())

	timeline := m.Timeline()
	assert.Equal(t, uint64(5), timeline[0].Tick, "oldest five evicted")
	assert.Equal(t, uint64(MemoryCapacity+4), timeline[len(timeline)-1].Tick)
}

func TestMemoryTimelineIsACopy(t *testing.T) {
	var m MemoryRing
	m.Add(InteractionRecord{Tick: 1, Kind: InteractionGift, Sentiment: 1})

	timeline := m.Timeline()
	timeline[0].Sentiment = -1

	assert.Equal(t, 1.0, m.Records[0].Sentiment)
}
