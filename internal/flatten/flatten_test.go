package flatten_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dhelos/saleshook/internal/flatten"
	"github.com/dhelos/saleshook/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		data map[string]any

		want map[string]any
	}{
		"Empty mapping": {
			data: map[string]any{},
			want: map[string]any{},
		},
		"Already flat mapping": {
			data: map[string]any{"name": "John", "age": 30},
			want: map[string]any{"name": "John", "age": 30},
		},
		"Nested mapping": {
			data: map[string]any{"a": map[string]any{"b": 1}},
			want: map[string]any{"a_b": 1},
		},
		"Deeply nested mapping": {
			data: map[string]any{
				"contact": map[string]any{
					"name": map[string]any{"first": "John", "last": "Doe"},
				},
			},
			want: map[string]any{
				"contact_name_first": "John",
				"contact_name_last":  "Doe",
			},
		},
		"List of scalars collapses to joined string": {
			data: map[string]any{"a": []any{1, 2, 3}},
			want: map[string]any{"a": "1, 2, 3"},
		},
		"List of strings collapses to joined string": {
			data: map[string]any{"tags": []any{"python", "flask", "cloud"}},
			want: map[string]any{"tags": "python, flask, cloud"},
		},
		"List of mappings expands per index": {
			data: map[string]any{"a": []any{
				map[string]any{"x": 1},
				map[string]any{"x": 2},
			}},
			want: map[string]any{"a_0_x": 1, "a_1_x": 2},
		},
		"Empty list collapses to empty string": {
			data: map[string]any{"a": []any{}},
			want: map[string]any{"a": ""},
		},
		"Mixed list indexes non-mapping elements": {
			data: map[string]any{"a": []any{
				map[string]any{"x": 1},
				2,
			}},
			want: map[string]any{"a_0_x": 1, "a_1": 2},
		},
		"Mixed list with nested scalar list": {
			data: map[string]any{"a": []any{
				map[string]any{"x": 1},
				[]any{1, 2},
			}},
			want: map[string]any{"a_0_x": 1, "a_1": "1, 2"},
		},
		"Scalars pass through verbatim": {
			data: map[string]any{
				"string":  "hello",
				"number":  42,
				"float":   3.14,
				"boolean": true,
				"null":    nil,
			},
			want: map[string]any{
				"string":  "hello",
				"number":  42,
				"float":   3.14,
				"boolean": true,
				"null":    nil,
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := flatten.Flatten(tc.data)
			assert.Equal(t, tc.want, got.Map(), "Flatten should produce the expected fields")
		})
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"order": map[string]any{"id": "o-1", "total": 19.99},
		"items": []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}},
	}

	first := flatten.Flatten(data)
	for range 10 {
		again := flatten.Flatten(data)
		require.Equal(t, first.Keys(), again.Keys(), "Key order should not vary between runs")
		require.Equal(t, first.Map(), again.Map(), "Values should not vary between runs")
	}
}

func TestFlattenIdempotentOnFlatInput(t *testing.T) {
	t.Parallel()

	flat := flatten.Flatten(map[string]any{"a_b": 1, "c": "x", "d": nil})
	again := flatten.Flatten(flat.Map())

	assert.Equal(t, flat.Map(), again.Map(), "Flattening an already flat record should be a no-op")
	assert.Equal(t, flat.Keys(), again.Keys(), "Key order should survive re-flattening")
}

func TestFromJSON(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload string

		want     map[string]any
		wantKeys []string
		wantErr  bool
	}{
		"Flat object": {
			payload:  `{"b": 1, "a": "x"}`,
			want:     map[string]any{"b": float64(1), "a": "x"},
			wantKeys: []string{"b", "a"},
		},
		"Nested object preserves document order": {
			payload:  `{"z": {"b": 1, "a": 2}, "m": true}`,
			want:     map[string]any{"z_b": float64(1), "z_a": float64(2), "m": true},
			wantKeys: []string{"z_b", "z_a", "m"},
		},
		"List of objects": {
			payload:  `{"items": [{"sku": "A"}, {"sku": "B"}]}`,
			want:     map[string]any{"items_0_sku": "A", "items_1_sku": "B"},
			wantKeys: []string{"items_0_sku", "items_1_sku"},
		},
		"List of scalars": {
			payload:  `{"ids": [1, 2, 3]}`,
			want:     map[string]any{"ids": "1, 2, 3"},
			wantKeys: []string{"ids"},
		},
		"List mixing objects and scalars": {
			payload:  `{"a": [{"x": 1}, 2]}`,
			want:     map[string]any{"a_0_x": float64(1), "a_1": float64(2)},
			wantKeys: []string{"a_0_x", "a_1"},
		},
		"Null value": {
			payload:  `{"a": null}`,
			want:     map[string]any{"a": nil},
			wantKeys: []string{"a"},
		},

		// Error cases
		"Empty body fails":      {payload: "", wantErr: true},
		"Invalid JSON fails":    {payload: `{"a": `, wantErr: true},
		"Non-object root fails": {payload: `[1, 2]`, wantErr: true},
		"Scalar root fails":     {payload: `42`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := flatten.FromJSON(strings.NewReader(tc.payload))
			if tc.wantErr {
				require.Error(t, err, "FromJSON should fail")
				return
			}
			require.NoError(t, err, "FromJSON should not fail")

			assert.Equal(t, tc.want, got.Map(), "FromJSON should produce the expected fields")
			assert.Equal(t, tc.wantKeys, got.Keys(), "FromJSON should preserve document key order")
		})
	}
}

func TestFlattenWebhookPayload(t *testing.T) {
	t.Parallel()

	payload := `{
		"order_number": 10233,
		"created_date": "2024-03-05T17:22:10.000Z",
		"buyer_info": {
			"email": "ana@example.com",
			"first_name": "Ana",
			"phone": "+34 600 111 222"
		},
		"totals": {
			"subtotal": 55.5,
			"total": 60
		},
		"line_items": [
			{"name": "Candle", "quantity": 2, "price": 12.5},
			{"name": "Diffuser", "quantity": 1, "price": 30.5}
		],
		"tags": ["gift", "fragile"],
		"paid": true
	}`

	rec, err := flatten.FromJSON(strings.NewReader(payload))
	require.NoError(t, err, "FromJSON should not fail")

	got := make([]string, 0, rec.Len())
	for _, k := range rec.Keys() {
		got = append(got, fmt.Sprintf("%s=%v", k, rec.Value(k)))
	}

	want := testutils.LoadWithUpdateFromGoldenYAML(t, got)
	assert.Equal(t, want, got, "Flattened payload should match golden file")
}
