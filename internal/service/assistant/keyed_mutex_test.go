package assistant

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, k.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.Len())

	unlockA()
	unlockB()
	assert.Zero(t, k.Len())
}

func TestActiveTraits(t *testing.T) {
	assert.Equal(t, []string{"helpful", "encouraging"}, activeTraits(lexicon.Chat, lexicon.Neutral))
	assert.Equal(t, []string{"helpful", "encouraging", "empathetic", "supportive"}, activeTraits(lexicon.HelpRequest, lexicon.Frustrated))
	assert.Equal(t, []string{"helpful", "encouraging", "creative"}, activeTraits(lexicon.MediaRequest, lexicon.Curious))
}

func TestActionsForReturnsCopy(t *testing.T) {
	actions := actionsFor(lexicon.HelpRequest)
	actions[0] = "changed"
	assert.Equal(t, "break_down_problem", actionsFor(lexicon.HelpRequest)[0])
	assert.Equal(t, defaultActions, actionsFor(lexicon.Feedback))
}
