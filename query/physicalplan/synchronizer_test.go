package physicalplan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockPhysicalPlan struct {
	callback func(context.Context, Batch) error
	finish   func(context.Context) error
}

func (m *mockPhysicalPlan) Callback(ctx context.Context, b Batch) error { return m.callback(ctx, b) }
func (m *mockPhysicalPlan) Finish(ctx context.Context) error            { return m.finish(ctx) }

func TestSynchronizerNoRaceAndSingleFinish(t *testing.T) {
	numCbCalls := 0
	numFinCalls := 0

	finMtx := sync.Mutex{}

	nextPlan := mockPhysicalPlan{
		// testing if the callback really is run synchronously: if it is
		// not serialized the count below will be wrong, and/or the test
		// will fail under -race.
		callback: func(context.Context, Batch) error {
			numCbCalls++
			return nil
		},
		finish: func(context.Context) error {
			finMtx.Lock()
			defer finMtx.Unlock()
			numFinCalls++
			return nil
		},
	}

	synchronize := Synchronize()
	synchronize.SetNext(&nextPlan)

	batchChan := make(chan Batch)
	simulateCaller := func() {
		synchronize.wg.Add(1)
		for b := range batchChan {
			err := synchronize.Callback(context.Background(), b)
			require.NoError(t, err)
		}
		err := synchronize.Finish(context.Background())
		require.NoError(t, err)
	}
	go simulateCaller()
	go simulateCaller()
	for i := 0; i < 10000; i++ {
		batchChan <- Batch{}
	}
	// give the goroutines time to finish
	time.Sleep(50 * time.Millisecond)

	// expect it doesn't call the finisher until everything is finished
	require.Equal(t, 0, numFinCalls)

	// expect it only calls the finisher once
	close(batchChan)
	// give it an opportunity to call if it's going to
	time.Sleep(50 * time.Millisecond)
	finMtx.Lock()
	require.Equal(t, 1, numFinCalls)
	finMtx.Unlock()

	// expect the number of calls to the callback is correct
	require.Equal(t, 10000, numCbCalls)
}
