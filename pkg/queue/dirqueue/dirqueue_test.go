package dirqueue_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/molsys/chemflow/pkg/queue"
	"github.com/molsys/chemflow/pkg/queue/dirqueue"
	"github.com/molsys/chemflow/pkg/utils/try"
)

func TestDirQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("consuming an empty queue returns ErrEmpty", func(t *testing.T) {
		q := dirqueue.New(t.TempDir())

		if _, err := q.Consumer("results").Next(ctx); !errors.Is(err, queue.ErrEmpty) {
			t.Errorf("expected ErrEmpty, got: %v", err)
		}
	})

	t.Run("messages come back oldest first", func(t *testing.T) {
		q := dirqueue.New(t.TempDir())

		try.To(q.Push(ctx, "results", []byte("first"))).OrFatal(t)
		try.To(q.Push(ctx, "results", []byte("second"))).OrFatal(t)
		try.To(q.Push(ctx, "results", []byte("third"))).OrFatal(t)

		consumer := q.Consumer("results")
		for _, expected := range []string{"first", "second", "third"} {
			msg := try.To(consumer.Next(ctx)).OrFatal(t)
			if string(msg.Payload) != expected {
				t.Errorf("expected %s, got: %s", expected, msg.Payload)
			}
			if err := consumer.Delete(ctx, msg.Key); err != nil {
				t.Fatal(err)
			}
		}

		if _, err := consumer.Next(ctx); !errors.Is(err, queue.ErrEmpty) {
			t.Errorf("expected ErrEmpty after draining, got: %v", err)
		}
	})

	t.Run("a message stays queued until acknowledged", func(t *testing.T) {
		q := dirqueue.New(t.TempDir())
		try.To(q.Push(ctx, "results", []byte("payload"))).OrFatal(t)

		consumer := q.Consumer("results")
		first := try.To(consumer.Next(ctx)).OrFatal(t)
		second := try.To(consumer.Next(ctx)).OrFatal(t)

		if first.Key != second.Key {
			t.Errorf("expected the same message twice: %s != %s", first.Key, second.Key)
		}
	})

	t.Run("queues are independent", func(t *testing.T) {
		q := dirqueue.New(t.TempDir())
		try.To(q.Push(ctx, "vasp.relax", []byte("for relax"))).OrFatal(t)
		try.To(q.Push(ctx, "vasp.static", []byte("for static"))).OrFatal(t)

		msg := try.To(q.Consumer("vasp.relax").Next(ctx)).OrFatal(t)
		if string(msg.Payload) != "for relax" {
			t.Errorf("unexpected payload: %s", msg.Payload)
		}

		if err := q.Consumer("vasp.static").Delete(ctx, msg.Key); err == nil {
			t.Error("deleting via another queue's consumer should fail")
		}
	})

	t.Run("in-flight writes and foreign files are invisible", func(t *testing.T) {
		root := t.TempDir()
		q := dirqueue.New(root)
		try.To(q.Push(ctx, "results", []byte("payload"))).OrFatal(t)

		dir := filepath.Join(root, "results")
		if err := os.WriteFile(filepath.Join(dir, ".0.partial.json.123"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		msg := try.To(q.Consumer("results").Next(ctx)).OrFatal(t)
		if string(msg.Payload) != "payload" {
			t.Errorf("unexpected payload: %s", msg.Payload)
		}
	})

	t.Run("queue names cannot escape the root", func(t *testing.T) {
		q := dirqueue.New(t.TempDir())
		if _, err := q.Push(ctx, "../escape", []byte("x")); err == nil {
			t.Error("expected an error for a queue name with a path separator")
		}
	})
}
