package correction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/reportfix/pkg/types"
)

// ErrInvalidResponse is returned when a remote backend replies with a payload
// that does not have the expected shape. Callers treat it exactly like an
// unreachable backend.
var ErrInvalidResponse = errors.New("correction: invalid remote response")

// Remote is a correction backend running outside the process, such as a hosted
// language model. Implementations must be safe for concurrent use and must
// honour ctx cancellation.
type Remote interface {
	// Correct applies the requested correction types to text and returns the
	// corrected text plus the corrections made. Any transport, timeout or
	// shape error is returned as a non-nil error.
	Correct(ctx context.Context, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, error)
}

// RemoteFunc adapts a function to [Remote].
type RemoteFunc func(ctx context.Context, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, error)

// Correct implements [Remote].
func (f RemoteFunc) Correct(ctx context.Context, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, error) {
	return f(ctx, text, requested)
}

// NormalizeRemote checks a remote reply against the request and returns the
// applied corrections in request order. Duplicate entries for one type are
// merged and zero counts dropped. It fails with [ErrInvalidResponse] when the
// corrected text is blank, a count is negative or a type was never requested.
func NormalizeRemote(requested []types.CorrectionType, corrected string, applied []types.AppliedCorrection) ([]types.AppliedCorrection, error) {
	if strings.TrimSpace(corrected) == "" {
		return nil, fmt.Errorf("%w: empty corrected_text", ErrInvalidResponse)
	}

	index := make(map[string]int, len(requested))
	for i, ct := range requested {
		index[ct.ID] = i
	}

	merged := make([]*types.AppliedCorrection, len(requested))
	for _, a := range applied {
		i, ok := index[a.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unrequested correction type %q", ErrInvalidResponse, a.Type)
		}
		if a.Count < 0 {
			return nil, fmt.Errorf("%w: negative count for %q", ErrInvalidResponse, a.Type)
		}
		if a.Count == 0 {
			continue
		}
		if merged[i] == nil {
			desc := a.Description
			if desc == "" {
				desc = requested[i].Description
			}
			merged[i] = &types.AppliedCorrection{Type: a.Type, Description: desc}
		}
		merged[i].Count += a.Count
	}

	out := make([]types.AppliedCorrection, 0, len(applied))
	for _, m := range merged {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}
