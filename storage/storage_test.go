package storage

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/etow/task-tracker/domain"
)

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"u1","RowKey":"t1","Name":"Write code","Category":"Planned","Order":1000,"Estimate":3,"Activity":"{\"Planned\":[{\"started\":0,\"finished\":900000}]}"}`)
	task, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "t1" || task.Name != "Write code" || task.Category != "Planned" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Order != 1000 || task.Estimate != 3 {
		t.Fatalf("unexpected order/estimate: %+v", task)
	}
	intervals := task.Activity["Planned"]
	if len(intervals) != 1 || intervals[0].Started != 0 {
		t.Fatalf("unexpected activity: %#v", task.Activity)
	}
	if intervals[0].Finished == nil || *intervals[0].Finished != 900000 {
		t.Fatalf("expected finished interval, got %#v", intervals[0])
	}
}

func TestDecodeTaskEntityEmptyActivity(t *testing.T) {
	data := []byte(`{"PartitionKey":"u1","RowKey":"t1","Name":"n","Category":"Planned"}`)
	task, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Activity == nil {
		t.Fatal("expected empty activity map, got nil")
	}
}

func TestEncodeTaskEntityRoundTripsActivity(t *testing.T) {
	task := domain.Task{
		ID:       "t1",
		Name:     "Write code",
		Category: "In progress",
		Order:    2000,
		Activity: domain.Activity{"In progress": {{Started: 5000}}},
	}
	ent, err := encodeTaskEntity("u1", task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if ent.PartitionKey != "u1" || ent.RowKey != "t1" {
		t.Fatalf("unexpected keys: %+v", ent.Entity)
	}
	if ent.Activity == "" {
		t.Fatal("expected serialized activity")
	}
}

func TestMapNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "plain error", err: errors.New("boom"), want: nil},
		{name: "entity missing", err: &azcore.ResponseError{StatusCode: http.StatusNotFound}, want: ErrItemNotFound},
		{name: "table missing", err: &azcore.ResponseError{ErrorCode: "TableNotFound", StatusCode: http.StatusNotFound}, want: ErrCollectionNotFound},
		{name: "server error", err: &azcore.ResponseError{StatusCode: http.StatusInternalServerError}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapNotFound(tt.err)
			if tt.want != nil {
				if !errors.Is(got, tt.want) {
					t.Fatalf("mapNotFound(%v) = %v, want %v", tt.err, got, tt.want)
				}
				return
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("expected original error back, got %v", got)
			}
		})
	}
}
