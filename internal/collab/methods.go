package collab

import (
	"context"
	"fmt"

	"inkboard/internal/rpc"
)

type roomInfoParams struct {
	BoardID string `json:"boardId"`
}

// Methods exposes sync calls over the RPC endpoint.
func (h *Hub) Methods() map[string]rpc.Method {
	return map[string]rpc.Method{
		"roomInfo": func(ctx context.Context, call rpc.Call) (any, error) {
			user, err := call.RequireUser()
			if err != nil {
				return nil, err
			}
			var params roomInfoParams
			if err := call.Decode(&params); err != nil {
				return nil, err
			}
			if params.BoardID == "" {
				return nil, fmt.Errorf("%w: boardId is required", rpc.ErrInvalidParams)
			}
			if err := h.boards.Authorize(ctx, user, params.BoardID); err != nil {
				return nil, err
			}
			return h.RoomInfo(params.BoardID), nil
		},
	}
}
