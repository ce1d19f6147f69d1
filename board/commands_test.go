package board

import (
	"context"
	"errors"
	"testing"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

func envelope(t *testing.T, typ string, data any) domain.Command {
	t.Helper()
	raw, err := sonic.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	return domain.Command{Type: typ, Data: raw}
}

func TestDecodeAndApplyCommands(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	apply := func(env domain.Command) Result {
		t.Helper()
		cmd, err := DecodeCommand(env)
		if err != nil {
			t.Fatalf("decode %s: %v", env.Type, err)
		}
		res, err := eng.Apply(ctx, cmd)
		if err != nil {
			t.Fatalf("apply %s: %v", env.Type, err)
		}
		return res
	}

	res := apply(envelope(t, domain.CommandAddTask, map[string]any{"title": "Write report", "status": "To do", "progressTotal": 3}))
	if !res.Changed || res.Task == nil || res.Task.ProgressTotal != 3 {
		t.Fatalf("unexpected add result: %#v", res)
	}
	id := res.Task.ID

	res = apply(envelope(t, domain.CommandMoveTask, domain.MoveTaskData{TaskID: id, SourceColumnID: domain.ColumnToDo, TargetColumnID: domain.ColumnInProgress}))
	if !res.Changed || res.Task.ProgressCurrent != 1 {
		t.Fatalf("unexpected move result: %#v", res)
	}

	res = apply(envelope(t, domain.CommandUpdateTask, map[string]any{"taskId": id, "form": map[string]any{"subtitle": "draft"}}))
	if res.Task.Subtitle != "draft" || res.Task.Status != domain.StatusInProgress {
		t.Fatalf("unexpected update result: %#v", res)
	}

	res = apply(envelope(t, domain.CommandMoveTask, domain.MoveTaskData{TaskID: id, SourceColumnID: domain.ColumnDone, TargetColumnID: domain.ColumnToDo}))
	if res.Changed {
		t.Fatal("stale move should report no change")
	}

	res = apply(envelope(t, domain.CommandDeleteAllTasks, domain.ColumnRef{ColumnID: domain.ColumnInProgress}))
	if res.Removed != 1 {
		t.Fatalf("expected one removed, got %#v", res)
	}

	res = apply(envelope(t, domain.CommandDeleteTask, domain.TaskRef{TaskID: id}))
	if res.Changed {
		t.Fatal("deleting a removed task should be a no-op")
	}
}

func TestDecodeCommandRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		env   domain.Command
		field string
	}{
		{"unknown type", domain.Command{Type: "rename-board", Data: []byte(`{}`)}, "type"},
		{"missing data", domain.Command{Type: domain.CommandAddTask}, "data"},
		{"malformed data", domain.Command{Type: domain.CommandMoveTask, Data: []byte(`[1,2]`)}, "data"},
		{"update without id", domain.Command{Type: domain.CommandUpdateTask, Data: []byte(`{"form":{}}`)}, "taskId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.env)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestApplyNilCommand(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Apply(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil command")
	}
}
