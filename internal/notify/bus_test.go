package notify

import "testing"

func TestPublishRunsHandlersThenFeed(t *testing.T) {
	bus := NewBus()
	feed, detach := bus.Feed().Subscribe(4)
	defer detach()

	var levels []int
	bus.LevelUp.Subscribe(func(n LevelUp) { levels = append(levels, n.Level) })
	bus.LevelUp.Publish(LevelUp{Level: 2, XP: 100})

	if len(levels) != 1 || levels[0] != 2 {
		t.Fatalf("handler saw %v", levels)
	}
	env := <-feed
	if env.Type != KindLevelUp {
		t.Fatalf("type=%q", env.Type)
	}
	if got, ok := env.Payload.(LevelUp); !ok || got.Level != 2 {
		t.Fatalf("payload %#v", env.Payload)
	}
}

func TestFeedDropsWhenFull(t *testing.T) {
	bus := NewBus()
	_, detach := bus.Feed().Subscribe(1)
	defer detach()

	for i := 0; i < 3; i++ {
		bus.LoanTaken.Publish(LoanTaken{Amount: int64(i)})
	}
	if got := bus.Feed().Dropped(); got != 2 {
		t.Fatalf("dropped=%d want 2", got)
	}
}

func TestDetachClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, detach := bus.Feed().Subscribe(1)
	detach()
	detach()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	bus.GameEnded.Publish(GameEnded{Outcome: "victory"})
}
