package board

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"taskboard/domain"
)

var statuses = []domain.Status{domain.StatusToDo, domain.StatusInProgress, domain.StatusDone}

func genStatus() gopter.Gen {
	return gen.IntRange(0, len(statuses)-1).Map(func(i int) domain.Status { return statuses[i] })
}

func genColumn() gopter.Gen {
	return gen.IntRange(0, len(domain.ColumnOrder)-1).Map(func(i int) domain.ColumnID { return domain.ColumnOrder[i] })
}

func TestAddTaskGrowsMatchingColumn(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("addTask adds exactly one task with the requested status", prop.ForAll(
		func(title string, status domain.Status) bool {
			eng := NewEngine(domain.NewBoard(), nil)
			before := len(eng.Snapshot().AllTasks())
			task, err := eng.AddTask(context.Background(), form(title, status))
			if err != nil {
				return false
			}
			snap := eng.Snapshot()
			col, _ := domain.ColumnForStatus(status)
			found, foundCol, ok := snap.FindTask(task.ID)
			return len(snap.AllTasks()) == before+1 && ok && foundCol == col && found.Status == status
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		genStatus(),
	))

	properties.TestingRun(t)
}

func TestMoveRoundTripAdvancesProgressOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("move A->B->A restores column and advances progress when entering in progress", prop.ForAll(
		func(a, b domain.ColumnID, total, current int) bool {
			if a == b {
				return true
			}
			if current > total {
				current = total
			}
			status, _ := domain.ColumnTitle(a)
			eng := NewEngine(domain.NewBoard(), nil)
			ctx := context.Background()
			task, err := eng.AddTask(ctx, withProgress(form("t", status), current, total))
			if err != nil {
				return false
			}
			if _, ok := eng.MoveTask(ctx, task.ID, a, b); !ok {
				return false
			}
			back, ok := eng.MoveTask(ctx, task.ID, b, a)
			if !ok {
				return false
			}
			want := current
			for _, entered := range []domain.ColumnID{b, a} {
				if entered == domain.ColumnInProgress {
					want = min(want+1, total)
				}
			}
			_, col, _ := eng.Snapshot().FindTask(task.ID)
			return col == a && back.ProgressCurrent == want && eng.Snapshot().Check() == nil
		},
		genColumn(),
		genColumn(),
		gen.IntRange(1, 10),
		gen.IntRange(0, 10),
	))

	properties.Property("deleting twice equals deleting once", prop.ForAll(
		func(n int, pick int) bool {
			eng := NewEngine(domain.NewBoard(), nil)
			ctx := context.Background()
			var ids []string
			for i := 0; i < n; i++ {
				task, _ := eng.AddTask(ctx, form("t", statuses[i%len(statuses)]))
				ids = append(ids, task.ID)
			}
			id := ids[pick%len(ids)]
			eng.DeleteTask(ctx, id)
			once := eng.Snapshot()
			eng.DeleteTask(ctx, id)
			twice := eng.Snapshot()
			return len(once.AllTasks()) == n-1 && mustJSONBool(once) == mustJSONBool(twice)
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 100),
	))

	properties.Property("moving a task from a column it is not in changes nothing", prop.ForAll(
		func(home, stale, target domain.ColumnID) bool {
			if home == stale || stale == target {
				return true
			}
			status, _ := domain.ColumnTitle(home)
			eng := NewEngine(domain.NewBoard(), nil)
			ctx := context.Background()
			task, _ := eng.AddTask(ctx, form("t", status))
			before := mustJSONBool(eng.Snapshot())
			_, moved := eng.MoveTask(ctx, task.ID, stale, target)
			return !moved && mustJSONBool(eng.Snapshot()) == before
		},
		genColumn(),
		genColumn(),
		genColumn(),
	))

	properties.TestingRun(t)
}

func mustJSONBool(b domain.Board) string {
	data, err := b.MarshalJSON()
	if err != nil {
		return "error: " + err.Error()
	}
	return string(data)
}
