package value

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestParseKeepsOrder checks that objects keep their field order through a decode/encode cycle
func TestParseKeepsOrder(t *testing.T) {
	in := `{"zeta":1,"alpha":"a","list":[true,null,2.5,{"b":1,"a":2}]}`
	v := MustParse(in)

	if v.Kind() != KindObject {
		t.Fatalf("expected object, got %s", v.Kind())
	}
	if diff := cmp.Diff(in, v.String()); diff != "" {
		t.Errorf("encoding mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "{", `{"a":}`, `[1,2`, `{"a":1} {"b":2}`} {
		t.Run(in, func(t *testing.T) {
			if _, err := Parse([]byte(in)); err == nil {
				t.Errorf("expected error for %q", in)
			}
		})
	}
}

func TestNumbers(t *testing.T) {
	cases := map[string]string{
		"1":                "1",
		"-3":               "-3",
		"2.5":              "2.5",
		"9007199254740991": "9007199254740991",
		"1e300":            "1e+300",
	}
	for in, want := range cases {
		if got := MustParse(in).String(); got != want {
			t.Errorf("number %s encoded as %s, want %s", in, got, want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := MustParse(`{"name":"a","tags":["x"]}`)
	c := orig.Clone()

	obj, _ := c.AsObject()
	obj.Set("name", String("b"))
	tags, _ := obj.Get("tags")
	items, _ := tags.AsList()
	items[0] = String("changed")

	if got := orig.String(); got != `{"name":"a","tags":["x"]}` {
		t.Errorf("original was modified through clone: %s", got)
	}
}

func TestEqualIgnoresFieldOrder(t *testing.T) {
	a := MustParse(`{"a":1,"b":[1,2]}`)
	b := MustParse(`{"b":[1,2],"a":1}`)
	if !a.Equal(b) {
		t.Error("objects with same fields should be equal")
	}
	if a.Equal(MustParse(`{"a":1,"b":[2,1]}`)) {
		t.Error("list order must matter")
	}
}

func TestIDs(t *testing.T) {
	t.Run("numeric and string ids", func(t *testing.T) {
		if id, ok := MustParse(`{"id":42}`).ID(); !ok || id != 42 {
			t.Errorf("got %d %v", id, ok)
		}
		if id, ok := MustParse(`{"id":"17"}`).ID(); !ok || id != 17 {
			t.Errorf("got %d %v", id, ok)
		}
	})

	t.Run("non-positive or malformed ids are absent", func(t *testing.T) {
		for _, in := range []string{`{"id":0}`, `{"id":-5}`, `{"id":"x"}`, `{"id":1.5}`, `{"name":"a"}`, `[{"id":1}]`, `"s"`} {
			if _, ok := MustParse(in).ID(); ok {
				t.Errorf("%s should have no id", in)
			}
		}
	})

	t.Run("set id", func(t *testing.T) {
		v := MustParse(`{"name":"a"}`)
		if !v.SetID(7) {
			t.Fatal("SetID failed on object")
		}
		if got := v.String(); got != `{"name":"a","id":7}` {
			t.Errorf("got %s", got)
		}
		if List().SetID(1) {
			t.Error("lists must not accept an id")
		}
	})
}

func TestProject(t *testing.T) {
	obj := MustParse(`{"id":5,"Name":"a","age":3,"city":"x"}`)

	cases := []struct {
		name   string
		fields []string
		want   string
	}{
		{"nil filter keeps everything", nil, `{"id":5,"Name":"a","age":3,"city":"x"}`},
		{"case insensitive", []string{"name"}, `{"id":5,"Name":"a"}`},
		{"several fields", []string{"AGE", "city"}, `{"id":5,"age":3,"city":"x"}`},
		{"empty filter keeps only id", []string{}, `{"id":5}`},
		{"blank entries ignored", []string{" ", ""}, `{"id":5}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if diff := cmp.Diff(c.want, Project(obj, c.fields).String()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}

	t.Run("list elements", func(t *testing.T) {
		list := MustParse(`[{"id":1,"name":"a","x":1},"plain",{"id":2,"x":2}]`)
		got := Project(list, ParseFields("name")).String()
		want := `[{"id":1,"name":"a"},"plain",{"id":2}]`
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("projection does not touch the source", func(t *testing.T) {
		_ = Project(obj, []string{})
		if o, _ := obj.AsObject(); o.Len() != 4 {
			t.Errorf("source lost fields: %s", obj)
		}
	})
}

func TestParseFields(t *testing.T) {
	if f := ParseFields(""); f == nil || len(f) != 0 {
		t.Errorf("empty string should give empty non-nil filter, got %#v", f)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ParseFields(" a, ,b ")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFileRecordJSON(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	rec := &FileRecord{
		ID:       9,
		Name:     "avatar",
		FileName: "me.png",
		Type:     "png",
		MimeType: "image/png",
		Size:     1234,
		ModTime:  ts,
		Locator:  "avatar.png.db",
		Content:  strings.NewReader("ignored"),
	}
	encoded := File(rec).String()
	if strings.Contains(encoded, "ignored") {
		t.Fatalf("content stream must not be serialized: %s", encoded)
	}

	decoded := MustParse(encoded)
	got, ok := decoded.AsFile()
	if !ok {
		t.Fatalf("expected file record, got %s", decoded.Kind())
	}
	if !got.Equal(rec) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, rec)
	}
	if id, _ := decoded.ID(); id != 9 {
		t.Errorf("file id = %d", id)
	}
}

func TestNewFileRecordGuessesMime(t *testing.T) {
	rec := NewFileRecord("doc", "Report.PDF", "", nil)
	if rec.Type != "pdf" {
		t.Errorf("type = %q", rec.Type)
	}
	if rec.MimeType != "application/pdf" {
		t.Errorf("mime = %q", rec.MimeType)
	}
	if NewFileRecord("x", "noext", "", nil).MimeType != "application/octet-stream" {
		t.Error("unknown files should default to octet-stream")
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]interface{}{"b": []interface{}{1, "x"}, "a": true})
	if err != nil {
		t.Fatal(err)
	}
	if got := v.String(); got != `{"a":true,"b":[1,"x"]}` {
		t.Errorf("got %s", got)
	}
	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
