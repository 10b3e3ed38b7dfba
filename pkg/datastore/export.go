package datastore

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// EventYAML represents a presence event in YAML export.
type EventYAML struct {
	ID        int64  `yaml:"id"`
	Kind      string `yaml:"kind"`
	Name      string `yaml:"name"`
	OldName   string `yaml:"old_name,omitempty"`
	ConnID    string `yaml:"conn_id,omitempty"`
	Remote    string `yaml:"remote,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	CreatedAt string `yaml:"created_at"`
}

// EventsExport is the top-level YAML for event export.
type EventsExport struct {
	Events []EventYAML `yaml:"events"`
}

// ExportEventsYAML pages through the whole audit log (newest first) and
// renders it as YAML.
func ExportEventsYAML(ctx context.Context, st EventReadProvider) ([]byte, error) {
	export := EventsExport{}
	pageSize := int64(DefaultPageSize)
	var offset int64
	for {
		events, err := st.ListEvents(ctx, model.EventFilters{PageSize: &pageSize, Offset: &offset})
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			export.Events = append(export.Events, EventYAML{
				ID:        e.ID,
				Kind:      e.Kind.String(),
				Name:      e.Name,
				OldName:   e.OldName,
				ConnID:    e.ConnID,
				Remote:    e.Remote,
				Reason:    e.Reason,
				CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		if int64(len(events)) < pageSize {
			break
		}
		offset += pageSize
	}
	return yaml.Marshal(&export)
}
