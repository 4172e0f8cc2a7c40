package control

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// StartRequest is the decoded body of StartBatch and ResumeBatch.
type StartRequest struct {
	IDs         []string
	Concurrency int
	// All selects every imported account and ignores IDs.
	All bool
}

func (r StartRequest) toStruct() (*structpb.Struct, error) {
	ids := make([]any, len(r.IDs))
	for i, id := range r.IDs {
		ids[i] = id
	}
	return structpb.NewStruct(map[string]any{
		"ids":         ids,
		"concurrency": r.Concurrency,
		"all":         r.All,
	})
}

func startRequestFrom(s *structpb.Struct) (StartRequest, error) {
	var req StartRequest
	f := s.GetFields()

	if v, ok := f["ids"]; ok {
		list := v.GetListValue()
		if list == nil {
			return req, fmt.Errorf("ids must be a list: %w", common.ErrInvalidRecord)
		}
		for _, item := range list.GetValues() {
			id, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return req, fmt.Errorf("ids must be strings: %w", common.ErrInvalidRecord)
			}
			req.IDs = append(req.IDs, id.StringValue)
		}
	}
	if v, ok := f["concurrency"]; ok {
		req.Concurrency = int(v.GetNumberValue())
	}
	if v, ok := f["all"]; ok {
		req.All = v.GetBoolValue()
	}
	return req, nil
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func snapshotToStruct(s batch.Snapshot) (*structpb.Struct, error) {
	stats := make(map[string]any, len(s.Stats))
	for k, v := range s.Stats {
		stats[k] = v
	}
	logs := make([]any, 0, len(s.Logs))
	for _, l := range s.Logs {
		logs = append(logs, map[string]any{
			"time":       timeString(l.Time),
			"account_id": l.AccountID,
			"message":    l.Message,
		})
	}
	results := make([]any, 0, len(s.Results))
	for _, r := range s.Results {
		results = append(results, map[string]any{
			"time":       timeString(r.Time),
			"account_id": r.AccountID,
			"status":     r.Status,
			"message":    r.Message,
		})
	}

	return structpb.NewStruct(map[string]any{
		"task_id":     s.TaskID,
		"status":      string(s.State),
		"concurrency": s.Concurrency,
		"total":       s.Total,
		"processed":   s.Processed,
		"pending":     s.Pending,
		"stats":       stats,
		"logs":        logs,
		"results":     results,
		"error":       s.Err,
		"started_at":  timeString(s.StartedAt),
		"finished_at": timeString(s.FinishedAt),
	})
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339, v)
	return t
}

// SnapshotFromStruct decodes a BatchStatus response.
func SnapshotFromStruct(st *structpb.Struct) batch.Snapshot {
	f := st.GetFields()
	s := batch.Snapshot{
		TaskID:      f["task_id"].GetStringValue(),
		State:       batch.State(f["status"].GetStringValue()),
		Concurrency: int(f["concurrency"].GetNumberValue()),
		Total:       int(f["total"].GetNumberValue()),
		Processed:   int(f["processed"].GetNumberValue()),
		Pending:     int(f["pending"].GetNumberValue()),
		Err:         f["error"].GetStringValue(),
		StartedAt:   parseTime(f["started_at"].GetStringValue()),
		FinishedAt:  parseTime(f["finished_at"].GetStringValue()),
		Stats:       map[string]int{},
	}
	for k, v := range f["stats"].GetStructValue().GetFields() {
		s.Stats[k] = int(v.GetNumberValue())
	}
	for _, v := range f["logs"].GetListValue().GetValues() {
		lf := v.GetStructValue().GetFields()
		s.Logs = append(s.Logs, batch.LogEntry{
			Time:      parseTime(lf["time"].GetStringValue()),
			AccountID: lf["account_id"].GetStringValue(),
			Message:   lf["message"].GetStringValue(),
		})
	}
	for _, v := range f["results"].GetListValue().GetValues() {
		rf := v.GetStructValue().GetFields()
		s.Results = append(s.Results, batch.Result{
			Time:      parseTime(rf["time"].GetStringValue()),
			AccountID: rf["account_id"].GetStringValue(),
			Status:    rf["status"].GetStringValue(),
			Message:   rf["message"].GetStringValue(),
		})
	}
	return s
}

// QuotaReport is the decoded Quota response.
type QuotaReport struct {
	models.Quota
	// Live is false when the service was unreachable and the last stored
	// snapshot is returned instead.
	Live  bool
	Error string
}

func quotaToStruct(q QuotaReport) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"total":           q.Total,
		"remaining_quota": q.RemainingQuota,
		"cost":            q.Cost,
		"used":            q.Used,
		"capacity":        q.Capacity,
		"updated_at":      timeString(q.UpdatedAt),
		"live":            q.Live,
		"error":           q.Error,
	})
}

func QuotaFromStruct(st *structpb.Struct) QuotaReport {
	f := st.GetFields()
	return QuotaReport{
		Quota: models.Quota{
			Total:          int(f["total"].GetNumberValue()),
			RemainingQuota: int(f["remaining_quota"].GetNumberValue()),
			Cost:           int(f["cost"].GetNumberValue()),
			Used:           int(f["used"].GetNumberValue()),
			Capacity:       int(f["capacity"].GetNumberValue()),
			UpdatedAt:      parseTime(f["updated_at"].GetStringValue()),
		},
		Live:  f["live"].GetBoolValue(),
		Error: f["error"].GetStringValue(),
	}
}
