package storage

import (
	"context"
	"fmt"
)

// ApplyBulk runs a bulk operation by iterating ids sequentially against the
// backend's single-asset operations. Best-effort: a failed id is recorded in
// the summary and the loop keeps going. Both local backends delegate here so
// the per-op semantics stay identical.
func ApplyBulk(ctx context.Context, b Backend, op BulkOp, ids []string, data BulkData, scope Scope) (*BulkResult, error) {
	result := &BulkResult{}

	for _, id := range ids {
		var msg string
		var ok bool

		switch op {
		case BulkDelete:
			res, err := b.DeleteAsset(ctx, id, scope)
			if err != nil {
				return nil, err
			}
			ok, msg = res.Success, res.Message

		case BulkUpdateStatus, BulkUpdateTags, BulkMoveToTeam, BulkMoveToPersonal, BulkToggleFavorite:
			patch, perr := bulkPatch(op, data)
			if perr != nil {
				ok, msg = false, perr.Error()
				break
			}
			res, err := b.UpdateAsset(ctx, id, patch, scope)
			if err != nil {
				return nil, err
			}
			ok, msg = res.Success, res.Message

		default:
			ok, msg = false, fmt.Sprintf("unknown bulk operation %q", op)
		}

		if ok {
			result.Success++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, msg))
		}
	}

	return result, nil
}

func bulkPatch(op BulkOp, data BulkData) (UpdatePatch, error) {
	patch := UpdatePatch{UserName: data.UserName, Action: string(op)}

	switch op {
	case BulkUpdateStatus:
		if data.Status == "" {
			return patch, fmt.Errorf("status is required for %s", op)
		}
		patch.Tags = map[string]string{"status": data.Status}
		patch.Details = "status -> " + data.Status
	case BulkUpdateTags:
		if len(data.Tags) == 0 {
			return patch, fmt.Errorf("tags are required for %s", op)
		}
		patch.Tags = data.Tags
	case BulkMoveToTeam:
		if data.TeamKey == "" {
			return patch, fmt.Errorf("team key is required for %s", op)
		}
		t := true
		patch.SetTeam = &t
		patch.TeamKey = data.TeamKey
	case BulkMoveToPersonal:
		f := false
		patch.SetTeam = &f
	case BulkToggleFavorite:
		patch.ToggleFavorite = true
	}

	return patch, nil
}
