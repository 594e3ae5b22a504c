package hash

import (
	"testing"
)

func TestSum_KnownVectors(t *testing.T) {
	// Пустой ввод — известные дайджесты
	d := Sum(nil)
	if d.SHA256 != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("SHA256 пустого ввода: получили %s", d.SHA256)
	}
	if d.MD5 != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("MD5 пустого ввода: получили %s", d.MD5)
	}
	if d.Size != 0 {
		t.Errorf("Size: хотели 0, получили %d", d.Size)
	}

	d = Sum([]byte("abc"))
	if d.SHA256 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("SHA256(abc): получили %s", d.SHA256)
	}
	if d.MD5 != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("MD5(abc): получили %s", d.MD5)
	}
	if d.Size != 3 {
		t.Errorf("Size: хотели 3, получили %d", d.Size)
	}
}

func TestWriter_StreamingEqualsWhole(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")

	w := NewWriter()
	// Пишем кусками — результат должен совпасть с подсчётом целиком
	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[i:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	streamed := w.Sum()
	whole := Sum(data)

	if streamed != whole {
		t.Errorf("потоковый и цельный дайджесты не совпали: %+v != %+v", streamed, whole)
	}
}

func TestSHA256Hex(t *testing.T) {
	if got := SHA256Hex([]byte("abc")); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("SHA256Hex(abc): получили %s", got)
	}
}

func TestIsValidSHA256Hex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", true},
		{"BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD", true},
		{"", false},
		{"ba7816", false},
		{"zz7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", false},
	}

	for _, tt := range tests {
		if got := IsValidSHA256Hex(tt.in); got != tt.want {
			t.Errorf("IsValidSHA256Hex(%q): хотели %v, получили %v", tt.in, tt.want, got)
		}
	}
}
