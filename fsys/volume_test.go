package fsys

import (
	"reflect"
	"testing"
)

func TestCleanPath(t *testing.T) {
	var table = []struct {
		input, output string
		bad           bool
	}{
		{"", "", false},
		{"/", "", false},
		{"a", "a", false},
		{"/a/b/", "a/b", false},
		{"a//b", "a/b", false},
		{"./a", "a", false},
		{"../a", "", true},
		{"a/../../b", "", true},
	}
	for _, tab := range table {
		result, err := clean("test", tab.input)
		if tab.bad {
			if CodeOf(err) != BadPath {
				t.Errorf("%q: Got %v, expected BadPath", tab.input, err)
			}
			continue
		}
		if err != nil || result != tab.output {
			t.Errorf("%q: Got %q, %v, expected %q", tab.input, result, err, tab.output)
		}
	}
}

func TestWriteRead(t *testing.T) {
	v := NewMemory(Synced)
	err := v.WriteBytes("a/b/c.txt", []byte("hello world"), WriteOptions{Create: true})
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	data, err := v.ReadBytes("a/b/c.txt")
	if err != nil || string(data) != "hello world" {
		t.Errorf("Got %q, %v, expected %q", data, err, "hello world")
	}
	part, err := v.ReadRange("a/b/c.txt", 6, 100)
	if err != nil || string(part) != "world" {
		t.Errorf("Got %q, %v, expected %q", part, err, "world")
	}
	if err := v.WriteAt("a/b/c.txt", 6, []byte("there")); err != nil {
		t.Fatalf("Got %v", err)
	}
	txt, _ := v.ReadTxtFile("a/b/c.txt")
	if txt != "hello there" {
		t.Errorf("Got %q, expected %q", txt, "hello there")
	}
	st, err := v.Stat("a/b/c.txt")
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	if !st.IsFile || st.IsFolder || st.Size != 11 || st.Version != 2 {
		t.Errorf("Got stats %+v", st)
	}
	st, _ = v.Stat("a/b")
	if !st.IsFolder || st.Version != 1 {
		t.Errorf("Got folder stats %+v", st)
	}
}

func TestWriteOptions(t *testing.T) {
	v := NewMemory(Synced)
	if err := v.WriteBytes("x", []byte("1"), WriteOptions{}); !IsNotFound(err) {
		t.Errorf("Got %v, expected NotFound", err)
	}
	excl := WriteOptions{Create: true, Exclusive: true}
	if err := v.WriteBytes("x", []byte("1"), excl); err != nil {
		t.Fatalf("Got %v", err)
	}
	if err := v.WriteBytes("x", []byte("2"), excl); !IsAlreadyExists(err) {
		t.Errorf("Got %v, expected AlreadyExists", err)
	}
	v.MakeFolder("d")
	if err := v.WriteBytes("d", []byte("2"), excl); !IsDirectoryErr(err) {
		t.Errorf("Got %v, expected IsDirectory", err)
	}
	if err := v.WriteBytes("x/y", []byte("2"), excl); !IsNotDirectory(err) {
		t.Errorf("Got %v, expected NotDirectory", err)
	}
	if _, err := v.ReadBytes("d"); !IsNotFile(err) {
		t.Errorf("Got %v, expected NotFile", err)
	}
	if _, err := v.ListFolder("x"); !IsNotDirectory(err) {
		t.Errorf("Got %v, expected NotDirectory", err)
	}
}

func TestListAndPresence(t *testing.T) {
	v := NewMemory(Local)
	for _, p := range []string{"t/b", "t/a", "t/c/d"} {
		v.WriteBytes(p, nil, WriteOptions{Create: true})
	}
	entries, err := v.ListFolder("t")
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Errorf("Got %v", names)
	}
	if !entries[2].IsFolder || entries[0].IsFolder {
		t.Errorf("Got entries %+v", entries)
	}
	ok, err := v.CheckFolderPresence("t/c")
	if !ok || err != nil {
		t.Errorf("Got %v, %v, expected present", ok, err)
	}
	ok, err = v.CheckFolderPresence("nope")
	if ok || err != nil {
		t.Errorf("Got %v, %v, expected absent", ok, err)
	}
	if _, err := v.CheckFolderPresence("t/a"); !IsNotDirectory(err) {
		t.Errorf("Got %v, expected NotDirectory", err)
	}
}

func TestXAttrs(t *testing.T) {
	v := NewMemory(Synced)
	v.WriteBytes("f", []byte("data"), WriteOptions{Create: true})
	err := v.UpdateXAttrs("f", XAttrsChanges{Set: map[string]string{"b": "2", "a": "1"}})
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	names, _ := v.ListXAttrs("f")
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("Got %v", names)
	}
	v.UpdateXAttrs("f", XAttrsChanges{Set: map[string]string{"c": "3"}, Remove: []string{"a"}})
	names, _ = v.ListXAttrs("f")
	if !reflect.DeepEqual(names, []string{"b", "c"}) {
		t.Errorf("Got %v", names)
	}
	if val, _ := v.GetXAttr("f", "zzz"); val != "" {
		t.Errorf("Got %q for unset attribute", val)
	}
	st, _ := v.Stat("f")
	if st.Version != 3 {
		t.Errorf("Got version %d, expected 3", st.Version)
	}
	if err := v.UpdateXAttrs("missing", XAttrsChanges{}); !IsNotFound(err) {
		t.Errorf("Got %v, expected NotFound", err)
	}
	// deleting and recreating starts a fresh record
	v.DeleteFile("f")
	v.WriteBytes("f", []byte("again"), WriteOptions{Create: true})
	names, _ = v.ListXAttrs("f")
	if len(names) != 0 {
		t.Errorf("Got stale attributes %v", names)
	}
}

func TestDelete(t *testing.T) {
	v := NewMemory(Synced)
	v.WriteBytes("d/e/f", []byte("x"), WriteOptions{Create: true})
	if err := v.DeleteFile("d/e"); !IsNotFile(err) {
		t.Errorf("Got %v, expected NotFile", err)
	}
	if err := v.DeleteFolder("d", false); CodeOf(err) != NotEmpty {
		t.Errorf("Got %v, expected NotEmpty", err)
	}
	if err := v.DeleteFolder("d", true); err != nil {
		t.Fatalf("Got %v", err)
	}
	if _, err := v.Stat("d/e/f"); !IsNotFound(err) {
		t.Errorf("Got %v, expected NotFound", err)
	}
	if err := v.DeleteFile("d/e/f"); !IsNotFound(err) {
		t.Errorf("Got %v, expected NotFound", err)
	}
	if err := v.DeleteFolder("", true); CodeOf(err) != BadPath {
		t.Errorf("Got %v, expected BadPath", err)
	}
}

func TestSubRoots(t *testing.T) {
	v := NewMemory(Synced)
	if _, err := v.WritableSubRoot("sub", false); !IsNotFound(err) {
		t.Errorf("Got %v, expected NotFound", err)
	}
	sub, err := v.WritableSubRoot("sub", true)
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	sub.WriteBytes("inner", []byte("x"), WriteOptions{Create: true})
	sub.UpdateXAttrs("inner", XAttrsChanges{Set: map[string]string{"k": "v"}})
	if val, _ := v.GetXAttr("sub/inner", "k"); val != "v" {
		t.Errorf("Got %q, expected attribute visible from the parent", val)
	}
	if sub.Type() != Synced || !sub.Versioned() {
		t.Errorf("sub-root lost its type")
	}
	ro, err := v.ReadonlySubRoot("sub")
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	data, _ := ro.ReadBytes("inner")
	if string(data) != "x" {
		t.Errorf("Got %q", data)
	}
	// the read-only view refuses writes even if asserted back
	if w, ok := ro.(WritableFS); ok {
		if err := w.WriteBytes("inner", nil, WriteOptions{}); CodeOf(err) != ReadOnly {
			t.Errorf("Got %v, expected ReadOnly", err)
		}
	}
	if _, err := v.ReadonlySubRoot("sub/inner"); !IsNotDirectory(err) {
		t.Errorf("Got %v, expected NotDirectory", err)
	}
}

func TestFileHandles(t *testing.T) {
	v := NewMemory(Synced)
	if _, err := v.ReadonlyFile("nope"); !IsNotFound(err) {
		t.Errorf("Got %v, expected NotFound", err)
	}
	w, err := v.WritableFile("out/target.txt", true)
	if err != nil {
		t.Fatalf("Got %v", err)
	}
	if w.Name() != "target.txt" {
		t.Errorf("Got name %q", w.Name())
	}
	v.WriteBytes("src.txt", []byte("copied content"), WriteOptions{Create: true})
	src, _ := v.ReadonlyFile("src.txt")
	if err := w.Copy(src); err != nil {
		t.Fatalf("Got %v", err)
	}
	txt, _ := v.ReadTxtFile("out/target.txt")
	if txt != "copied content" {
		t.Errorf("Got %q", txt)
	}
	v.MakeFolder("dir")
	if _, err := v.ReadonlyFile("dir"); !IsNotFile(err) {
		t.Errorf("Got %v, expected NotFile", err)
	}
}

func TestSaveFileAndFolder(t *testing.T) {
	src := NewMemory(Synced)
	src.WriteBytes("tree/a.txt", []byte("A"), WriteOptions{Create: true})
	src.WriteBytes("tree/sub/b.txt", []byte("B"), WriteOptions{Create: true})
	src.UpdateXAttrs("tree/sub/b.txt", XAttrsChanges{Set: map[string]string{"tag": "b"}})
	src.UpdateXAttrs("tree", XAttrsChanges{Set: map[string]string{"tag": "root"}})

	dst := NewMemory(Synced)
	tree, _ := src.ReadonlySubRoot("tree")
	if err := dst.SaveFolder(tree, "copy"); err != nil {
		t.Fatalf("Got %v", err)
	}
	data, _ := dst.ReadBytes("copy/sub/b.txt")
	if string(data) != "B" {
		t.Errorf("Got %q", data)
	}
	if val, _ := dst.GetXAttr("copy/sub/b.txt", "tag"); val != "b" {
		t.Errorf("Got %q, expected file attribute carried over", val)
	}
	if val, _ := dst.GetXAttr("copy", "tag"); val != "root" {
		t.Errorf("Got %q, expected folder attribute carried over", val)
	}
	if err := dst.SaveFolder(tree, "copy"); !IsAlreadyExists(err) {
		t.Errorf("Got %v, expected AlreadyExists", err)
	}

	f, _ := src.ReadonlyFile("tree/a.txt")
	if err := dst.SaveFile(f, "single"); err != nil {
		t.Fatalf("Got %v", err)
	}
	if err := dst.SaveFile(f, "single"); !IsAlreadyExists(err) {
		t.Errorf("Got %v, expected AlreadyExists", err)
	}
	if err := dst.SaveFile(f, "copy"); !IsDirectoryErr(err) {
		t.Errorf("Got %v, expected IsDirectory", err)
	}
	if err := dst.SaveFolder(tree, "single"); !IsNotDirectory(err) {
		t.Errorf("Got %v, expected NotDirectory", err)
	}

	// copying between views of one volume must not deadlock
	if err := src.SaveFolder(tree, "tree2"); err != nil {
		t.Fatalf("Got %v", err)
	}
}
