// Package notify carries typed simulation notifications. Core handlers run
// synchronously on the publishing path; external consumers read copies from a
// bounded feed that drops on overflow.
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

type Envelope struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	Sender  string    `json:"sender"`
	At      time.Time `json:"at"`
}

type Topic[T any] struct {
	name     string
	mu       sync.RWMutex
	handlers []func(T)
	feed     *Feed
}

func newTopic[T any](name string, feed *Feed) *Topic[T] {
	return &Topic[T]{name: name, feed: feed}
}

func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers a core handler. Handlers must not block and may only
// mutate the subsystem that owns them.
func (t *Topic[T]) Subscribe(fn func(T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, fn)
}

func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	handlers := t.handlers
	t.mu.RUnlock()
	for _, h := range handlers {
		h(v)
	}
	if t.feed != nil {
		t.feed.push(Envelope{Type: t.name, Payload: v, Sender: "sim", At: time.Now().UTC()})
	}
}

type Feed struct {
	mu      sync.Mutex
	next    int
	subs    map[int]chan Envelope
	dropped atomic.Uint64
}

func newFeed() *Feed {
	return &Feed{subs: make(map[int]chan Envelope)}
}

// Subscribe returns a channel of envelopes and a function that detaches it.
func (f *Feed) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Envelope, buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Feed) push(env Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- env:
		default:
			f.dropped.Add(1)
		}
	}
}

type Bus struct {
	HourAdvanced        *Topic[HourAdvanced]
	DayAdvanced         *Topic[DayAdvanced]
	WeekAdvanced        *Topic[WeekAdvanced]
	MonthAdvanced       *Topic[MonthAdvanced]
	QuarterAdvanced     *Topic[QuarterAdvanced]
	LevelUp             *Topic[LevelUp]
	NetWorthChanged     *Topic[NetWorthChanged]
	LoanTaken           *Topic[LoanTaken]
	BudgetUpdated       *Topic[BudgetUpdated]
	EventApplied        *Topic[EventApplied]
	InvestmentMade      *Topic[InvestmentMade]
	AchievementUnlocked *Topic[AchievementUnlocked]
	GameEnded           *Topic[GameEnded]

	feed *Feed
}

func NewBus() *Bus {
	feed := newFeed()
	return &Bus{
		HourAdvanced:        newTopic[HourAdvanced](KindHourAdvanced, feed),
		DayAdvanced:         newTopic[DayAdvanced](KindDayAdvanced, feed),
		WeekAdvanced:        newTopic[WeekAdvanced](KindWeekAdvanced, feed),
		MonthAdvanced:       newTopic[MonthAdvanced](KindMonthAdvanced, feed),
		QuarterAdvanced:     newTopic[QuarterAdvanced](KindQuarterAdvanced, feed),
		LevelUp:             newTopic[LevelUp](KindLevelUp, feed),
		NetWorthChanged:     newTopic[NetWorthChanged](KindNetWorthChanged, feed),
		LoanTaken:           newTopic[LoanTaken](KindLoanTaken, feed),
		BudgetUpdated:       newTopic[BudgetUpdated](KindBudgetUpdated, feed),
		EventApplied:        newTopic[EventApplied](KindEventApplied, feed),
		InvestmentMade:      newTopic[InvestmentMade](KindInvestmentMade, feed),
		AchievementUnlocked: newTopic[AchievementUnlocked](KindAchievementUnlocked, feed),
		GameEnded:           newTopic[GameEnded](KindGameEnded, feed),
		feed:                feed,
	}
}

func (b *Bus) Feed() *Feed {
	return b.feed
}
