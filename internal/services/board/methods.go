package board

import (
	"context"
	"fmt"

	"inkboard/internal/models"
	"inkboard/internal/rpc"
	"inkboard/internal/store"
)

type boardIDParams struct {
	ID string `json:"id"`
}

type createParams struct {
	Title string `json:"title"`
}

type renameParams struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type saveSceneParams struct {
	ID              string       `json:"id"`
	Scene           models.Scene `json:"scene"`
	ExpectedVersion *int64       `json:"expected_version,omitempty"`
}

// SaveSceneResult reports the version written by saveScene.
type SaveSceneResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Methods exposes board calls over the RPC endpoint.
func (s *Service) Methods() map[string]rpc.Method {
	return map[string]rpc.Method{
		"list": func(ctx context.Context, call rpc.Call) (any, error) {
			return s.List(ctx, call.User)
		},
		"create": func(ctx context.Context, call rpc.Call) (any, error) {
			var params createParams
			if err := call.Decode(&params); err != nil {
				return nil, err
			}
			return s.Create(ctx, call.User, params.Title)
		},
		"get": func(ctx context.Context, call rpc.Call) (any, error) {
			params, err := decodeBoardID(call)
			if err != nil {
				return nil, err
			}
			return s.Get(ctx, call.User, params.ID)
		},
		"rename": func(ctx context.Context, call rpc.Call) (any, error) {
			var params renameParams
			if err := call.Decode(&params); err != nil {
				return nil, err
			}
			return s.Rename(ctx, call.User, params.ID, params.Title)
		},
		"delete": func(ctx context.Context, call rpc.Call) (any, error) {
			params, err := decodeBoardID(call)
			if err != nil {
				return nil, err
			}
			if err := s.Delete(ctx, call.User, params.ID); err != nil {
				return nil, err
			}
			return map[string]string{"id": params.ID}, nil
		},
		"saveScene": func(ctx context.Context, call rpc.Call) (any, error) {
			var params saveSceneParams
			if err := call.Decode(&params); err != nil {
				return nil, err
			}
			expected := store.AnyVersion
			if params.ExpectedVersion != nil {
				expected = *params.ExpectedVersion
			}
			version, err := s.SaveScene(ctx, call.User, params.ID, params.Scene, expected)
			if err != nil {
				return nil, err
			}
			return SaveSceneResult{ID: params.ID, Version: version}, nil
		},
	}
}

func decodeBoardID(call rpc.Call) (boardIDParams, error) {
	var params boardIDParams
	if err := call.Decode(&params); err != nil {
		return params, err
	}
	if params.ID == "" {
		return params, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return params, nil
}
