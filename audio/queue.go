package audio

import "sync/atomic"

type cmdKind int

const (
	cmdTrigger cmdKind = iota
	cmdNoteOff
	cmdStopAll
	cmdClick
)

// command is the fixed-size unit crossing from the control domain to the
// render thread. Trigger commands carry the whole settings snapshot by
// value.
type command struct {
	kind cmdKind

	trigger   TriggerParams
	voiceID   int64
	release   float64
	track     int
	immediate bool
	accent    bool
}

// commandQueue is a lock-free spsc ring between the control domain and the
// render thread. The single-producer contract is the engine's: its command
// methods serialize their pushes behind one mutex. push never blocks: a
// full ring rejects the command so the caller can count and log it, and
// the render side can never be held up by a producer.
type commandQueue struct {
	cmds        []command
	read, write *uint32
}

func newCommandQueue(size int) *commandQueue {
	if size <= 0 || size&(size-1) != 0 {
		panic("command queue size must be a power of 2")
	}
	return &commandQueue{
		cmds:  make([]command, size),
		read:  new(uint32),
		write: new(uint32),
	}
}

func (q *commandQueue) push(c command) bool {
	read := atomic.LoadUint32(q.read)
	write := atomic.LoadUint32(q.write)
	if write-read == uint32(len(q.cmds)) {
		return false
	}
	q.cmds[write%uint32(len(q.cmds))] = c
	atomic.StoreUint32(q.write, write+1)
	return true
}

// drain consumes all queued commands in push order.
func (q *commandQueue) drain(f func(command)) {
	read := atomic.LoadUint32(q.read)
	write := atomic.LoadUint32(q.write)
	for read != write {
		f(q.cmds[read%uint32(len(q.cmds))])
		read++
	}
	atomic.StoreUint32(q.read, read)
}
