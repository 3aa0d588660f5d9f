package events

import "sync"

// Handler 事件处理器
type Handler func(event Event)

type subscription struct {
	id      uint64
	types   map[EventType]struct{} // 为空表示全部事件
	handler Handler
}

func (s subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus 进程内事件总线。存储层在释放锁之后发布写事件，
// 编译引擎与快照器订阅后各自做防抖。
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 订阅指定类型的事件（不传类型时订阅全部），返回取消订阅函数
func (b *Bus) Subscribe(handler Handler, types ...EventType) (cancel func()) {
	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

// SubscribeAll 订阅所有事件
func (b *Bus) SubscribeAll(handler Handler) (cancel func()) {
	return b.Subscribe(handler)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish 每个处理器在独立 goroutine 中执行
func (b *Bus) Publish(event Event) {
	for _, h := range b.handlersFor(event) {
		go h(event)
	}
}

// PublishSync 在调用方 goroutine 中按订阅顺序执行
func (b *Bus) PublishSync(event Event) {
	for _, h := range b.handlersFor(event) {
		h(event)
	}
}

// PublishBatch 发布一组事件（级联删除等复合写操作）
func (b *Bus) PublishBatch(batch []Event) {
	for _, event := range batch {
		b.Publish(event)
	}
}

// Subscribers 当前会收到该类型事件的处理器数量
func (b *Bus) Subscribers(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.wants(t) {
			n++
		}
	}
	return n
}

// handlersFor 复制处理器列表，避免在锁内执行订阅方代码
func (b *Bus) handlersFor(event Event) []Handler {
	if event == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(event.Type()) {
			out = append(out, s.handler)
		}
	}
	return out
}
