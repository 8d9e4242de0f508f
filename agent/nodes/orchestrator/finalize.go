package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

func Finalize(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Negotiation == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	return GraphOutput{
		Vertical:       in.Vertical,
		Shortlist:      in.Shortlist,
		Negotiation:    in.Negotiation,
		Recommendation: in.Recommendation,
	}, nil
}
