package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

type fakeTable struct {
	createErr error
	rows      map[string][]byte
}

func (f *fakeTable) CreateTable(context.Context, *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.createErr
}

func (f *fakeTable) GetEntity(_ context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	data, ok := f.rows[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
	}
	return aztables.GetEntityResponse{Value: data}, nil
}

func (f *fakeTable) UpsertEntity(_ context.Context, entity []byte, _ *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	var keys struct {
		PartitionKey string
		RowKey       string
	}
	if err := sonic.Unmarshal(entity, &keys); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	f.rows[keys.PartitionKey+"/"+keys.RowKey] = entity
	return aztables.UpsertEntityResponse{}, nil
}

func TestTableKVRoundTripsLargeValues(t *testing.T) {
	ctx := context.Background()
	table := &fakeTable{rows: map[string][]byte{}}
	kv, err := newTableKV(ctx, table)
	if err != nil {
		t.Fatalf("new table kv: %v", err)
	}

	if _, err := kv.Get(ctx, "ns:taskUser"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// a profile picture data URI easily exceeds one property
	value := []byte(`{"nickname":"Zoë","profilePic":"data:image/png;base64,` + strings.Repeat("é", maxChunkBytes) + `"}`)
	if err := kv.Set(ctx, "ns:taskUser", value); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := kv.Get(ctx, "ns:taskUser")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(value) {
		t.Fatalf("value changed in round trip: %d bytes vs %d", len(got), len(value))
	}
}

func TestTableKVToleratesExistingTable(t *testing.T) {
	exists := &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: string(aztables.TableAlreadyExists)}
	if _, err := newTableKV(context.Background(), &fakeTable{createErr: exists}); err != nil {
		t.Fatalf("existing table should be accepted: %v", err)
	}
	if _, err := newTableKV(context.Background(), &fakeTable{createErr: errors.New("forbidden")}); err == nil {
		t.Fatal("expected other create errors to fail")
	}
}

func TestEncodeChunksSplitsOnRuneBoundaries(t *testing.T) {
	value := []byte(strings.Repeat("ab", maxChunkBytes/2-1) + "€€")
	entity, err := encodeChunks("row", value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var props map[string]any
	if err := sonic.Unmarshal(entity, &props); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if props["Chunks"] != float64(2) {
		t.Fatalf("expected 2 chunks, got %v", props["Chunks"])
	}
	first := props[chunkName(0)].(string)
	if strings.HasSuffix(first, "\xe2") || !strings.HasSuffix(first, "ab") {
		t.Fatalf("chunk split inside a rune: %q", first[len(first)-4:])
	}
	back, err := decodeChunks(entity)
	if err != nil || string(back) != string(value) {
		t.Fatalf("round trip failed: %v", err)
	}
}
