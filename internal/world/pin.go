package world

import (
	"fmt"
	"sync/atomic"
)

// Pin удерживает чанк в памяти, пока загрузка или сохранение не завершены.
// Создаётся вместе с увеличением счётчика, Release уменьшает его ровно один раз,
// поэтому удобно писать `defer pin.Release()` на всех путях выхода.
type Pin struct {
	counter  *atomic.Int32
	released atomic.Bool
}

func newPin(counter *atomic.Int32) *Pin {
	counter.Add(1)
	return &Pin{counter: counter}
}

// Release снимает закрепление; повторные вызовы ничего не делают
func (p *Pin) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	if n := p.counter.Add(-1); n < 0 {
		panic(fmt.Sprintf("world: счётчик закреплений чанка ушёл в минус (%d)", n))
	}
}
