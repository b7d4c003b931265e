package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestBar_Counts(t *testing.T) {
	var buf bytes.Buffer
	bar := New(Options{Total: 30, Writer: &buf})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); bar.Increment() }()
		go func() { defer wg.Done(); bar.IncrementSkipped() }()
		go func() { defer wg.Done(); bar.IncrementFailed() }()
	}
	wg.Wait()
	bar.Finish()

	got := bar.Counts()
	want := Counts{Done: 10, Skipped: 10, Failed: 10}
	if got != want {
		t.Errorf("Counts() = %+v, want %+v", got, want)
	}
	if bar.IsDisabled() {
		t.Error("IsDisabled() = true for an enabled bar")
	}
}

func TestBar_Disabled(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"explicit", Options{Total: 5, Disabled: true}},
		{"zero total", Options{Total: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Writer = &buf
			bar := New(tt.opts)

			bar.Increment()
			bar.Finish()

			if !bar.IsDisabled() {
				t.Error("IsDisabled() = false, want true")
			}
			if bar.Counts().Done != 1 {
				t.Errorf("Counts().Done = %d, want 1", bar.Counts().Done)
			}
			if buf.Len() != 0 {
				t.Errorf("disabled bar wrote %q", buf.String())
			}
		})
	}
}

func TestBar_WriteMessage(t *testing.T) {
	var buf bytes.Buffer
	bar := New(Options{Disabled: true, Writer: &buf})

	bar.WriteMessage("✅ %s\n", "cat.jpg")

	if !strings.Contains(buf.String(), "✅ cat.jpg") {
		t.Errorf("output = %q, want message", buf.String())
	}
}
