package regmap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestBitHelpers(t *testing.T) {
	m := New(GPIO)
	if m.Len() != 41 {
		t.Fatalf("Expected 41 words, got %d", m.Len())
	}

	m.Store(3, 0xFFFF0000)
	m.ClearMask(3, ^uint32(0x00FF0000))
	if got := m.Load(3); got != 0xFF000000 {
		t.Errorf("ClearMask: expected 0xFF000000, got 0x%08x", got)
	}

	m.SetMasked(3, ^uint32(0xFF000000), 0x0F000000)
	if got := m.Load(3); got != 0x0F000000 {
		t.Errorf("SetMasked: expected 0x0F000000, got 0x%08x", got)
	}

	m.SetBits(3, 0x1)
	if got := m.Load(3); got != 0x0F000001 {
		t.Errorf("SetBits: expected 0x0F000001, got 0x%08x", got)
	}

	if !m.IsBitSet(3, 0x1) || m.IsBitSet(3, 0x2) {
		t.Error("IsBitSet returned wrong result")
	}
}

func TestLockedReadModifyWrite(t *testing.T) {
	m := New(GPIO)

	var wg sync.WaitGroup
	for bit := 0; bit < 32; bit++ {
		wg.Add(1)
		go func(mask uint32) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.Lock()
				m.ClearMask(0, ^mask)
				m.SetBits(0, mask)
				m.Unlock()
			}
		}(1 << uint(bit))
	}
	wg.Wait()

	if got := m.Load(0); got != 0xFFFFFFFF {
		t.Errorf("Expected every bit set, got 0x%08x", got)
	}
}

func TestTraceObservesStores(t *testing.T) {
	m := New(SPI0)
	var seen []int
	m.SetTrace(func(index int, value uint32) {
		seen = append(seen, index)
	})
	m.Store(0, 1)
	m.SetBits(2, 4)
	m.Load(1)

	if len(seen) != 2 || seen[0] != 0 || seen[1] != 2 {
		t.Errorf("Expected stores [0 2], got %v", seen)
	}
}

func TestDump(t *testing.T) {
	m := New(SPI0)
	m.Store(1, 5)

	var buf bytes.Buffer
	if err := m.Dump(&buf); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != SPI0.Words {
		t.Fatalf("Expected %d lines, got %d", SPI0.Words, len(lines))
	}
	want := "Offset 1:\t00000000000000000000000000000101"
	if lines[1] != want {
		t.Errorf("Expected %q, got %q", want, lines[1])
	}
}

func TestCloseInMemory(t *testing.T) {
	if err := New(PWM).Close(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPeripheralBase(t *testing.T) {
	dir := t.TempDir()
	old := RangesPath
	defer func() { RangesPath = old }()

	tests := []struct {
		name  string
		bytes []byte
		want  int64
	}{
		{"missing", nil, Pi1Base},
		{"pi2", []byte{0x7e, 0, 0, 0, 0x3f, 0, 0, 0, 0x01, 0, 0, 0}, Pi2Base},
		{"pi4", []byte{0x7e, 0, 0, 0, 0, 0, 0, 0, 0xfe, 0, 0, 0}, Pi4Base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RangesPath = filepath.Join(dir, tt.name)
			if tt.bytes != nil {
				if err := os.WriteFile(RangesPath, tt.bytes, 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if got := PeripheralBase(); got != tt.want {
				t.Errorf("Expected 0x%x, got 0x%x", tt.want, got)
			}
		})
	}
}
