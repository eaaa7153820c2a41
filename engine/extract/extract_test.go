package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

type fakeDescriber struct {
	calls int
	desc  string
	err   error
}

func (f *fakeDescriber) Describe(context.Context, []byte) (string, error) {
	f.calls++
	return f.desc, f.err
}

func TestTextFilesPassThrough(t *testing.T) {
	v := &fakeDescriber{}
	e := New(v, nil)

	got := e.Text(context.Background(), "notes.md", []byte("# Kirchhoff\nsum of currents"))
	if got != "# Kirchhoff\nsum of currents" {
		t.Fatalf("got %q", got)
	}
	if v.calls != 0 {
		t.Fatal("vision model must not run for text files")
	}
}

func TestUnknownExtensionTreatedAsText(t *testing.T) {
	e := New(&fakeDescriber{}, nil)
	if got := e.Text(context.Background(), "dump.log", []byte("plain")); got != "plain" {
		t.Fatalf("got %q", got)
	}
}

func TestInvalidUTF8Replaced(t *testing.T) {
	e := New(nil, nil)
	got := e.Text(context.Background(), "raw.txt", []byte{'o', 'k', 0xff, 0xfe, '!'})
	if !utf8.ValidString(got) {
		t.Fatalf("output is not valid UTF-8: %q", got)
	}
	if !strings.HasPrefix(got, "ok") || !strings.HasSuffix(got, "!") {
		t.Fatalf("valid bytes lost: %q", got)
	}
}

func TestImageDescribed(t *testing.T) {
	v := &fakeDescriber{desc: "a circuit diagram with two resistors"}
	e := New(v, nil)

	got := e.Text(context.Background(), "circuit.PNG", []byte{0x89, 'P', 'N', 'G'})
	if v.calls != 1 {
		t.Fatalf("vision calls = %d", v.calls)
	}
	if !strings.Contains(got, "circuit.PNG") || !strings.Contains(got, "two resistors") {
		t.Fatalf("got %q", got)
	}
}

func TestImageDescriptionFailureIsExplainedNotFatal(t *testing.T) {
	v := &fakeDescriber{err: errors.New("model not loaded")}
	e := New(v, nil)

	got := e.Text(context.Background(), "photo.jpg", nil)
	if !strings.Contains(got, "Description unavailable") || !strings.Contains(got, "model not loaded") {
		t.Fatalf("got %q", got)
	}
}

func TestNilVisionClient(t *testing.T) {
	e := New(nil, nil)
	got := e.Text(context.Background(), "photo.jpeg", nil)
	if !strings.Contains(got, "Description unavailable") {
		t.Fatalf("got %q", got)
	}
}
