package policy

import (
	"encoding/json"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

func marshalPolicy(p domain.ServiceLevelPolicy) ([]byte, error) {
	return json.Marshal(p)
}

func unmarshalPolicy(payload []byte) (domain.ServiceLevelPolicy, error) {
	var p domain.ServiceLevelPolicy
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.ServiceLevelPolicy{}, err
	}
	return p, nil
}
