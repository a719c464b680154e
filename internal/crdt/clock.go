package crdt

import (
	"sync"
)

// LamportClock представляет логические часы Лампорта. В medpass используется
// журналом аудита: каждая запись получает порядковый номер, строго больший
// всех ранее выданных на этом устройстве.
type LamportClock struct {
	nodeID  string     // идентификатор устройства
	counter uint64     // монотонно возрастающий счетчик
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewLamportClock создает часы для устройства с заданным идентификатором.
func NewLamportClock(nodeID string) *LamportClock {
	return &LamportClock{nodeID: nodeID}
}

// Tick увеличивает счетчик и возвращает новое значение.
// Используется при создании нового локального события.
func (lc *LamportClock) Tick() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Observe продвигает часы до значения, увиденного в хранилище или у другого узла:
// counter = max(counter, seen). В отличие от классического Update не делает
// дополнительного инкремента - следующий Tick сам выдаст seen+1.
func (lc *LamportClock) Observe(seen uint64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if seen > lc.counter {
		lc.counter = seen
	}
}

// Current возвращает текущее значение счетчика без изменения.
func (lc *LamportClock) Current() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// NodeID возвращает идентификатор устройства.
func (lc *LamportClock) NodeID() string {
	return lc.nodeID
}
