package lfstore

import (
	"context"
	"testing"

	"github.com/ndlib/lfstore/fsys"
)

func TestDownloadFile(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, nil)
	id, _ := s.AddBlob(ctx, Blob{Content: []byte("export me")}, nil)
	out := fsys.NewMemory(fsys.Local)
	target, _ := out.WritableFile("copy.bin", true)

	res := s.DownloadFile(ctx, id, target)
	if res.Err != nil || res.ID != id || res.Name != "copy.bin" {
		t.Errorf("Got %+v", res)
	}
	txt, _ := out.ReadTxtFile("copy.bin")
	if txt != "export me" {
		t.Errorf("Got %q", txt)
	}

	res = s.DownloadFile(ctx, "00/00/00/0000", target)
	if !IsNotFound(res.Err) {
		t.Errorf("Got %v, expected not found", res.Err)
	}
}

func TestDownloadFiles(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, nil)
	named, _ := s.AddBlob(ctx, Blob{Content: []byte("one")}, Attrs{FileNameAttr: "one.txt"})
	unnamed, _ := s.AddBlob(ctx, Blob{Content: []byte("two")}, nil)
	src := fsys.NewMemory(fsys.Local)
	src.MakeFolder("tree")
	tree, _ := src.ReadonlySubRoot("tree")
	folder, _ := s.AddFolder(ctx, tree, nil)
	nested, _ := s.AddBlob(ctx, Blob{Content: []byte("three")}, Attrs{FileNameAttr: "a/b/three.txt"})

	out := fsys.NewMemory(fsys.Local)
	ids := []string{named, "zz/zz/zz/zzzz", unnamed, folder, nested}
	results := s.DownloadFiles(ctx, ids, out)
	if len(results) != len(ids) {
		t.Fatalf("Got %d results, expected %d", len(results), len(ids))
	}
	for i, res := range results {
		if res.ID != ids[i] {
			t.Errorf("result %d: Got id %s, expected %s", i, res.ID, ids[i])
		}
	}
	var table = []struct {
		name    string
		content string
		failed  bool
	}{
		{"one.txt", "one", false},
		{"", "", true},
		{unnamed[9:], "two", false},
		{"", "", true},
		{"three.txt", "three", false},
	}
	for i, tab := range table {
		res := results[i]
		if (res.Err != nil) != tab.failed {
			t.Errorf("result %d: Got %v, expected failed=%v", i, res.Err, tab.failed)
			continue
		}
		if tab.failed {
			continue
		}
		if res.Name != tab.name {
			t.Errorf("result %d: Got name %q, expected %q", i, res.Name, tab.name)
		}
		txt, err := out.ReadTxtFile(tab.name)
		if err != nil || txt != tab.content {
			t.Errorf("result %d: Got %q, %v, expected %q", i, txt, err, tab.content)
		}
	}
	if !IsNotFound(results[1].Err) || !IsNotFile(results[3].Err) {
		t.Errorf("Got %v and %v", results[1].Err, results[3].Err)
	}

	// a second export over the same names fails per item
	again := s.DownloadFiles(ctx, []string{named}, out)
	if !fsys.IsAlreadyExists(again[0].Err) {
		t.Errorf("Got %v, expected already exists", again[0].Err)
	}
}
