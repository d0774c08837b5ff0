package assets

import (
	"context"

	"inkboard/internal/rpc"
)

// ManifestResult is the staticAssets.manifest response.
type ManifestResult struct {
	Builtin bool    `json:"builtin"`
	Assets  []Asset `json:"assets"`
}

// Methods exposes asset calls over the RPC endpoint.
func (s *Service) Methods() map[string]rpc.Method {
	return map[string]rpc.Method{
		"manifest": func(ctx context.Context, call rpc.Call) (any, error) {
			if s.dir == "" {
				return ManifestResult{Builtin: true, Assets: []Asset{builtinIndexAsset()}}, nil
			}
			return ManifestResult{Assets: s.Manifest()}, nil
		},
	}
}
