package account

import (
	"context"

	"inkboard/internal/rpc"
)

type changePasswordParams struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// Methods exposes account calls over the RPC endpoint.
func (s *Service) Methods() map[string]rpc.Method {
	return map[string]rpc.Method{
		"me": func(ctx context.Context, call rpc.Call) (any, error) {
			return call.RequireUser()
		},
		"changePassword": func(ctx context.Context, call rpc.Call) (any, error) {
			user, err := call.RequireUser()
			if err != nil {
				return nil, err
			}
			var params changePasswordParams
			if err := call.Decode(&params); err != nil {
				return nil, err
			}
			if err := s.ChangePassword(ctx, user, call.SessionToken, params.OldPassword, params.NewPassword); err != nil {
				return nil, err
			}
			return map[string]bool{"changed": true}, nil
		},
	}
}
