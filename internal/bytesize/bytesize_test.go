package bytesize

import "testing"

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"0", 0},
		{"4096", 4096},
		{"1024B", 1024},
		{"1k", 1000},
		{"1KB", 1000},
		{"1Ki", 1024},
		{"100Mi", 100 * MiB},
		{"100MB", 100 * MB},
		{"1.5Ki", 1536},
		{"2Gi", 2 * GiB},
		{"1TiB", TiB},
		{" 500 Mi ", 500 * MiB},
		{"1gib", GiB},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if err != nil {
				t.Fatalf("ParseByteSize(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseByteSizeErrors(t *testing.T) {
	for _, in := range []string{"", "  ", "Mi", "12Xi", "1..5Ki", "-1Ki"} {
		if _, err := ParseByteSize(in); err == nil {
			t.Errorf("ParseByteSize(%q) error = nil, want failure", in)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("64Mi")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if b != 64*MiB {
		t.Errorf("UnmarshalText(64Mi) = %d", b)
	}
	if err := b.UnmarshalText([]byte("nonsense")); err == nil {
		t.Error("UnmarshalText(nonsense) error = nil, want failure")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{100 * MiB, "100.00MiB"},
		{3 * GiB, "3.00GiB"},
		{TiB, "1.00TiB"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", uint64(tt.in), got, tt.want)
		}
	}
}
