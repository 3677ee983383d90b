// Package dirqueue is a queue.Producer/Consumer over a plain directory
// tree: one subdirectory per queue, one file per message. Runners on
// the compute side only need a shared filesystem to take part.
package dirqueue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sync/atomic"

	"github.com/google/uuid"
	kio "github.com/molsys/chemflow/pkg/io"
	"github.com/molsys/chemflow/pkg/queue"
)

const suffix = ".json"

// DirQueue roots a directory tree of queues.
type DirQueue struct {
	root string

	// tie-breaker for pushes landing on the same nanosecond.
	seq uint64
}

func New(root string) *DirQueue {
	return &DirQueue{root: root}
}

var _ queue.Producer = &DirQueue{}

// Push writes payload as a new file in the queue's directory, creating
// the directory when missing.
//
// Message keys are "<queue>/<filename>"; filenames start with a
// zero-padded nanosecond timestamp, so lexicographic order is arrival
// order.
func (d *DirQueue) Push(ctx context.Context, name string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("queue name should not contain a path separator: %s", name)
	}

	key := filepath.Join(name, fmt.Sprintf(
		"%020d.%010d.%s%s",
		time.Now().UnixNano(), atomic.AddUint64(&d.seq, 1), uuid.New().String(), suffix,
	))
	if err := kio.WriteFileAtomic(
		filepath.Join(d.root, key), payload, 0644, 0755,
	); err != nil {
		return "", err
	}
	return key, nil
}

// Consumer binds to one queue under the root. The queue's directory
// may not exist yet; until it does, the queue is just empty.
func (d *DirQueue) Consumer(name string) queue.Consumer {
	return &dirConsumer{root: d.root, name: name}
}

type dirConsumer struct {
	root string
	name string
}

func (c *dirConsumer) Next(ctx context.Context) (queue.Message, error) {
	if err := ctx.Err(); err != nil {
		return queue.Message{}, err
	}

	dir := filepath.Join(c.root, c.name)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return queue.Message{}, queue.ErrEmpty
	}
	if err != nil {
		return queue.Message{}, err
	}

	names := []string{}
	for _, e := range entries {
		// in-flight atomic writes are dotfiles; skip them.
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return queue.Message{}, queue.ErrEmpty
	}
	sort.Strings(names)

	oldest := names[0]
	payload, err := os.ReadFile(filepath.Join(dir, oldest))
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{
		Key:     filepath.Join(c.name, oldest),
		Payload: payload,
	}, nil
}

func (c *dirConsumer) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Dir(key) != c.name {
		return fmt.Errorf("key %s is not of queue %s", key, c.name)
	}
	return os.Remove(filepath.Join(c.root, key))
}
