package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fleetguard-core/internal/device"
)

// QueuedCommand is a command held for later delivery.
type QueuedCommand struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Command    device.Command `json:"command"`
	Timestamp  time.Time      `json:"timestamp"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// commandQueue is a bounded FIFO of pending commands. When full, the
// oldest entry is evicted to make room for the newest.
//
// All methods are thread-safe.
type commandQueue struct {
	mu      sync.Mutex
	entries []QueuedCommand
	max     int
}

func newCommandQueue(max int) *commandQueue {
	return &commandQueue{max: max}
}

// Enqueue appends a command, evicting the oldest entry when the queue
// is at capacity. It returns the queued record and the evicted entry,
// if any.
func (q *commandQueue) Enqueue(deviceID string, cmd device.Command, maxRetries int) (QueuedCommand, *QueuedCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted *QueuedCommand
	if len(q.entries) >= q.max {
		oldest := q.entries[0]
		evicted = &oldest
		q.entries = q.entries[1:]
	}

	queued := QueuedCommand{
		ID:         "cmd-" + uuid.NewString()[:8],
		DeviceID:   deviceID,
		Command:    cmd.DeepCopy(),
		Timestamp:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
	q.entries = append(q.entries, queued)

	return queued, evicted
}

// Peek returns the oldest entry without removing it.
func (q *commandQueue) Peek() (QueuedCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return QueuedCommand{}, false
	}
	return q.entries[0], true
}

// Remove deletes the entry with the given id. It reports whether an
// entry was removed.
func (q *commandQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, entry := range q.entries {
		if entry.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RecordFailure increments the retry count for the entry with the given
// id. When the count reaches the entry's retry ceiling the entry is
// dropped; dropped reports that case.
func (q *commandQueue) RecordFailure(id string) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].ID != id {
			continue
		}
		q.entries[i].RetryCount++
		if q.entries[i].RetryCount >= q.entries[i].MaxRetries {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
		return false
	}
	return false
}

// Size returns the number of queued commands.
func (q *commandQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the queue contents, oldest first.
func (q *commandQueue) Snapshot() []QueuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedCommand, len(q.entries))
	for i, entry := range q.entries {
		out[i] = entry
		out[i].Command = entry.Command.DeepCopy()
	}
	return out
}

// OldestTimestamp returns the timestamp of the oldest entry.
func (q *commandQueue) OldestTimestamp() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return time.Time{}, false
	}
	return q.entries[0].Timestamp, true
}
