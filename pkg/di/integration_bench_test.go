package di

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
	"github.com/goliatone/go-goal-cache/pkg/testsupport"
)

func newBenchContainer(b *testing.B, goals int) (*Container, []ids.ID) {
	b.Helper()

	fakes := newFakeSources()
	list := make([]ids.ID, goals)
	for i := range list {
		id := fmt.Sprintf("g%d", i)
		fakes.counts.SetCount(model.KindNotes, id, i)
		fakes.counts.SetCount(model.KindAccomplishments, id, i/2)
		list[i] = ids.Persisted(id)
	}

	container, err := NewContainerWithDefaults(identity.Static(testsupport.User), fakes.Sources())
	if err != nil {
		b.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	return container, list
}

func BenchmarkFetchCount_Hit(b *testing.B) {
	container, list := newBenchContainer(b, 100)
	ctx := context.Background()
	counter := container.Counter()
	for _, id := range list {
		counter.FetchCount(ctx, model.KindNotes, id)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			counter.FetchCount(ctx, model.KindNotes, list[i%len(list)])
			i++
		}
	})
}

func BenchmarkFetchCount_Temporary(b *testing.B) {
	container, _ := newBenchContainer(b, 1)
	ctx := context.Background()
	temp := ids.NewTemporary()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		container.Counter().FetchCount(ctx, model.KindNotes, temp)
	}
}

func BenchmarkFetchCountsForMany(b *testing.B) {
	container, list := newBenchContainer(b, 50)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := container.Counter().FetchCountsForMany(ctx, list); !ok {
			b.Fatal("batch failed")
		}
	}
}
