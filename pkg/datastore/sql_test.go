package datastore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NicolasHaas/linechat/pkg/datastore"
	"github.com/NicolasHaas/linechat/pkg/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"
)

func NewTestSqlConn(t *testing.T) (*datastore.SQLStore, error) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := datastore.NewSQLStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("store_test: failed to open db: %w", err)
	}

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			fmt.Printf("Error closing database: %v\n", err)
		}
	})

	return st, nil
}

// stores returns one fresh instance of every EventStore implementation.
func stores(t *testing.T) map[string]datastore.EventStore {
	t.Helper()

	sqlStore, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	return map[string]datastore.EventStore{
		"sqlite": sqlStore,
		"memory": datastore.NewMemory(),
	}
}

func ptr[T any](v T) *T { return &v }

func TestReopenKeepsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	st, err := datastore.NewSQLStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	if err := st.RecordEvent(context.Background(), &model.Event{Kind: model.EventJoin, Name: "alice"}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = datastore.NewSQLStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLStore (reopen): %v", err)
	}
	defer func() { _ = st.Close() }()

	events, err := st.ListEvents(context.Background(), model.EventFilters{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents after reopen: want 1 event, got %d", len(events))
	}
}

func TestRecordEvent(t *testing.T) {
	t.Parallel()

	type tcase struct {
		event     model.Event
		expectErr bool
	}

	tcases := map[string]tcase{
		"join": {
			event: model.Event{Kind: model.EventJoin, Name: "alice", ConnID: "c1", Remote: "127.0.0.1:5000"},
		},
		"rename": {
			event: model.Event{Kind: model.EventRename, Name: "robert", OldName: "bob"},
		},
		"leave_with_reason": {
			event: model.Event{Kind: model.EventLeave, Name: "alice", Reason: model.ReasonTimeout},
		},
		"empty_name": {
			event:     model.Event{Kind: model.EventJoin, Name: ""},
			expectErr: true,
		},
		"injection_name": {
			event:     model.Event{Kind: model.EventJoin, Name: "' OR '1'='1"},
			expectErr: true,
		},
		"too_long_name": {
			event:     model.Event{Kind: model.EventJoin, Name: strings.Repeat("a", model.MaxUsernameLength+1)},
			expectErr: true,
		},
		"rename_without_old_name": {
			event:     model.Event{Kind: model.EventRename, Name: "robert"},
			expectErr: true,
		},
		"unknown_kind": {
			event:     model.Event{Kind: model.EventKind(10), Name: "alice"},
			expectErr: true,
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			for storeName, st := range stores(t) {
				event := tc.event
				err := st.RecordEvent(context.Background(), &event)
				if tc.expectErr {
					if err == nil {
						t.Fatalf("%s: RecordEvent: expected error, got nil", storeName)
					}
					continue
				}
				if err != nil {
					t.Fatalf("%s: RecordEvent: unexpected error: %v", storeName, err)
				}
				if event.ID == 0 {
					t.Fatalf("%s: RecordEvent: expected ID to be assigned", storeName)
				}
				if event.CreatedAt.IsZero() {
					t.Fatalf("%s: RecordEvent: expected CreatedAt to be assigned", storeName)
				}

				got, err := st.ListEvents(context.Background(), model.EventFilters{})
				if err != nil {
					t.Fatalf("%s: ListEvents: %v", storeName, err)
				}
				want := []model.Event{tc.event}
				if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.Event{}, "ID", "CreatedAt")); diff != "" {
					t.Errorf("%s: ListEvents mismatch (-want +got):\n%s", storeName, diff)
				}
			}
		})
	}
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	seed := []model.Event{
		{Kind: model.EventJoin, Name: "alice"},
		{Kind: model.EventJoin, Name: "bob"},
		{Kind: model.EventRename, Name: "robert", OldName: "bob"},
		{Kind: model.EventLeave, Name: "alice", Reason: model.ReasonQuit},
		{Kind: model.EventLeave, Name: "robert", Reason: model.ReasonDisconnect},
	}

	type tcase struct {
		filters   model.EventFilters
		wantNames []string
	}

	tcases := map[string]tcase{
		"all_newest_first": {
			wantNames: []string{"robert", "alice", "robert", "bob", "alice"},
		},
		"by_name": {
			filters:   model.EventFilters{LimitToName: ptr("alice")},
			wantNames: []string{"alice", "alice"},
		},
		"by_kind": {
			filters:   model.EventFilters{LimitToKind: ptr(model.EventJoin)},
			wantNames: []string{"bob", "alice"},
		},
		"paged": {
			filters:   model.EventFilters{PageSize: ptr(int64(2)), Offset: ptr(int64(1))},
			wantNames: []string{"alice", "robert"},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			for storeName, st := range stores(t) {
				base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
				for i, e := range seed {
					e.CreatedAt = base.Add(time.Duration(i) * time.Second)
					if err := st.RecordEvent(context.Background(), &e); err != nil {
						t.Fatalf("%s: RecordEvent: failed to seed: %v", storeName, err)
					}
				}

				events, err := st.ListEvents(context.Background(), tc.filters)
				if err != nil {
					t.Fatalf("%s: ListEvents: %v", storeName, err)
				}
				var got []string
				for _, e := range events {
					got = append(got, e.Name)
				}
				if diff := cmp.Diff(tc.wantNames, got); diff != "" {
					t.Errorf("%s: ListEvents mismatch (-want +got):\n%s", storeName, diff)
				}
			}
		})
	}
}

func TestCreatedAtRoundTrip(t *testing.T) {
	st, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}

	at := time.Date(2026, 3, 4, 5, 6, 7, 123456000, time.UTC)
	if err := st.RecordEvent(context.Background(), &model.Event{Kind: model.EventJoin, Name: "alice", CreatedAt: at}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	events, err := st.ListEvents(context.Background(), model.EventFilters{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents: want 1 event, got %d", len(events))
	}
	if !events[0].CreatedAt.Equal(at) {
		t.Errorf("CreatedAt: want %v, got %v", at, events[0].CreatedAt)
	}
}

func TestExportEventsYAML(t *testing.T) {
	st := datastore.NewMemory()
	total := datastore.DefaultPageSize + 5
	for i := 0; i < total; i++ {
		if err := st.RecordEvent(context.Background(), &model.Event{Kind: model.EventJoin, Name: fmt.Sprintf("user%d", i)}); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	data, err := datastore.ExportEventsYAML(context.Background(), st)
	if err != nil {
		t.Fatalf("ExportEventsYAML: %v", err)
	}

	var export datastore.EventsExport
	if err := yaml.Unmarshal(data, &export); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if len(export.Events) != total {
		t.Fatalf("ExportEventsYAML: want %d events, got %d", total, len(export.Events))
	}
	if export.Events[0].Name != fmt.Sprintf("user%d", total-1) || export.Events[0].Kind != "join" {
		t.Errorf("ExportEventsYAML: unexpected first event %+v", export.Events[0])
	}
}
