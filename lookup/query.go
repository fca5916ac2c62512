package lookup

import (
	"encoding/json"
	"strings"
)

// Query is the parsed form of a lookup question.
type Query interface{ isQuery() }

// RecentQuery asks for the newest orders.
type RecentQuery struct {
	Limit int
	Skip  int
}

// MyOrdersQuery asks for orders authored by one actor.
type MyOrdersQuery struct {
	ActorKey string
	Limit    int
	Skip     int
}

// MyCommitmentsQuery asks for commitments authored by one actor.
type MyCommitmentsQuery struct {
	ActorKey string
	Limit    int
	Skip     int
}

// FlowByOrderQuery asks for the full flow rooted at an order.
type FlowByOrderQuery struct {
	Txid string
}

// FlowByCommitmentQuery asks for the flow reachable from a commitment.
type FlowByCommitmentQuery struct {
	Txid string
}

// UnrecognizedQuery is the fallback for payloads that name no known
// query kind. Callers treat it as a recent query with defaults.
type UnrecognizedQuery struct {
	Raw string
}

func (RecentQuery) isQuery()           {}
func (MyOrdersQuery) isQuery()         {}
func (MyCommitmentsQuery) isQuery()    {}
func (FlowByOrderQuery) isQuery()      {}
func (FlowByCommitmentQuery) isQuery() {}
func (UnrecognizedQuery) isQuery()     {}

const defaultLimit = 50

// queryEnvelope covers every field any query kind may carry.
type queryEnvelope struct {
	Kind     string `json:"kind"`
	ActorKey string `json:"actorKey"`
	Txid     string `json:"txid"`
	Limit    *int   `json:"limit"`
	Skip     *int   `json:"skip"`
}

// ParseQuery decodes a lookup question payload leniently. The payload
// may be a JSON object or a JSON-encoded string holding one; anything
// unparseable or naming no known kind becomes UnrecognizedQuery.
// Limits default to defaultLimit and are clamped to maxLimit.
func ParseQuery(raw json.RawMessage, maxLimit int) Query {
	var env queryEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Some clients double-encode the query as a JSON string.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return UnrecognizedQuery{Raw: string(raw)}
		}
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			return UnrecognizedQuery{Raw: s}
		}
	}

	limit := clampLimit(env.Limit, maxLimit)
	skip := 0
	if env.Skip != nil && *env.Skip > 0 {
		skip = *env.Skip
	}

	switch strings.TrimSpace(env.Kind) {
	case "recent":
		return RecentQuery{Limit: limit, Skip: skip}
	case "my-orders":
		return MyOrdersQuery{ActorKey: env.ActorKey, Limit: limit, Skip: skip}
	case "my-commitments":
		return MyCommitmentsQuery{ActorKey: env.ActorKey, Limit: limit, Skip: skip}
	case "flow-by-order":
		return FlowByOrderQuery{Txid: env.Txid}
	case "flow-by-commitment":
		return FlowByCommitmentQuery{Txid: env.Txid}
	}
	return UnrecognizedQuery{Raw: string(raw)}
}

func clampLimit(v *int, maxLimit int) int {
	limit := defaultLimit
	if v != nil && *v > 0 {
		limit = *v
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
