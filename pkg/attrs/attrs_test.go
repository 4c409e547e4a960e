package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

type stringer string

func (s stringer) String() string { return "s:" + string(s) }

func TestExtractString(t *testing.T) {
	kv := []any{"name", "alpha", 7, "skipped", "count", 3, "owner", "address:alice"}

	assert.Equal(t, "alpha", ExtractString(kv, "name"))
	assert.Equal(t, "address:alice", ExtractString(kv, "owner"))
	assert.Empty(t, ExtractString(kv, "count"))
	assert.Empty(t, ExtractString(kv, "missing"))
	assert.Empty(t, ExtractString([]any{"dangling"}, "dangling"))
}

func TestToOtel(t *testing.T) {
	got := ToOtel([]any{
		"name", "alpha",
		"reclaimed", true,
		"seconds", int64(30),
		"n", 2,
		"owner", stringer("alice"),
		42, "ignored",
		"ratio", 0.5,
		"dangling",
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("name", "alpha"),
		attribute.Bool("reclaimed", true),
		attribute.Int64("seconds", 30),
		attribute.Int("n", 2),
		attribute.String("owner", "s:alice"),
		attribute.String("ratio", "0.5"),
	}, got)
}
