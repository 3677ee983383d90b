package io_test

import (
	"os"
	"path/filepath"
	"testing"

	kio "github.com/molsys/chemflow/pkg/io"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("it writes a file with missing parent directories", func(t *testing.T) {
		root := t.TempDir()
		name := filepath.Join(root, "a", "b", "message.json")

		if err := kio.WriteFileAtomic(name, []byte(`{"ok":true}`), 0644, 0755); err != nil {
			t.Fatal(err)
		}

		content, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != `{"ok":true}` {
			t.Errorf("unexpected content: %s", content)
		}
	})

	t.Run("it replaces an existing file", func(t *testing.T) {
		root := t.TempDir()
		name := filepath.Join(root, "message.json")

		if err := kio.WriteFileAtomic(name, []byte("old"), 0644, 0755); err != nil {
			t.Fatal(err)
		}
		if err := kio.WriteFileAtomic(name, []byte("new"), 0644, 0755); err != nil {
			t.Fatal(err)
		}

		content, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != "new" {
			t.Errorf("unexpected content: %s", content)
		}
	})

	t.Run("it leaves no temporary files behind", func(t *testing.T) {
		root := t.TempDir()
		name := filepath.Join(root, "message.json")

		if err := kio.WriteFileAtomic(name, []byte("payload"), 0644, 0755); err != nil {
			t.Fatal(err)
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Name() != "message.json" {
			names := []string{}
			for _, e := range entries {
				names = append(names, e.Name())
			}
			t.Errorf("unexpected directory content: %v", names)
		}
	})
}
