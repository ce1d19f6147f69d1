package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

const (
	tablePartition = "state"
	// Table Storage caps string properties at 64 KiB of UTF-16.
	maxChunkBytes = 30000
	maxChunks     = 200
)

type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// TableKV stores each key as one Azure Table entity. Values larger than a
// single property are split over numbered Value properties.
type TableKV struct {
	table tableClient
}

// NewTableKV connects to Table Storage and creates the table if absent.
func NewTableKV(ctx context.Context, connStr, table string) (*TableKV, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTableKV(ctx, svc.NewClient(table))
}

func newTableKV(ctx context.Context, c tableClient) (*TableKV, error) {
	if _, err := c.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	return &TableKV{table: c}, nil
}

func (t *TableKV) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := t.table.GetEntity(ctx, tablePartition, rowKey(key), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeChunks(resp.Value)
}

func (t *TableKV) Set(ctx context.Context, key string, value []byte) error {
	entity, err := encodeChunks(rowKey(key), value)
	if err != nil {
		return err
	}
	_, err = t.table.UpsertEntity(ctx, entity, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// rowKey maps a store key onto the characters Table Storage allows.
func rowKey(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "#", "_", "?", "_").Replace(key)
}

func chunkName(i int) string {
	return fmt.Sprintf("Value%03d", i)
}

func encodeChunks(row string, value []byte) ([]byte, error) {
	entity := map[string]any{
		"PartitionKey": tablePartition,
		"RowKey":       row,
	}
	n := 0
	for len(value) > 0 {
		if n == maxChunks {
			return nil, fmt.Errorf("value for %s exceeds %d bytes", row, maxChunks*maxChunkBytes)
		}
		cut := min(len(value), maxChunkBytes)
		for cut < len(value) && cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		entity[chunkName(n)] = string(value[:cut])
		value = value[cut:]
		n++
	}
	entity["Chunks"] = n
	return sonic.ConfigStd.Marshal(entity)
}

func decodeChunks(raw []byte) ([]byte, error) {
	var entity map[string]any
	if err := sonic.ConfigStd.Unmarshal(raw, &entity); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	count, ok := entity["Chunks"].(float64)
	if !ok {
		return nil, errors.New("entity without Chunks property")
	}
	var out []byte
	for i := 0; i < int(count); i++ {
		part, ok := entity[chunkName(i)].(string)
		if !ok {
			return nil, fmt.Errorf("entity missing %s", chunkName(i))
		}
		out = append(out, part...)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
