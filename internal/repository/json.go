package repository

import (
	"encoding/json"
	"fmt"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

type seerHistoryRow struct {
	Night    int        `json:"night"`
	TargetID string     `json:"targetId"`
	Role     match.Role `json:"role"`
}

func marshalSeerHistory(history []match.Inspection) ([]byte, error) {
	rows := make([]seerHistoryRow, 0, len(history))
	for _, h := range history {
		rows = append(rows, seerHistoryRow{Night: h.Night, TargetID: h.TargetID, Role: h.Role})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal seer history: %w", err)
	}
	return data, nil
}

func unmarshalSeerHistory(data []byte) ([]match.Inspection, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []seerHistoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal seer history: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]match.Inspection, 0, len(rows))
	for _, r := range rows {
		out = append(out, match.Inspection{Night: r.Night, TargetID: r.TargetID, Role: r.Role})
	}
	return out, nil
}
