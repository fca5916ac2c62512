package codec

import (
	"encoding/json"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
)

// taggedPayload is the JSON object carried in a tagged OP_RETURN push.
// Proof records use this shape instead of pushdrop.
type taggedPayload struct {
	Kind   string `json:"kind"`
	Topic  string `json:"topic"`
	Actor  string `json:"actor"`
	Parent string `json:"parent"`
	Sha256 string `json:"sha256"`
	BoxFor string `json:"boxFor"`
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
}

// DecodeTagged decodes a tagged OP_RETURN script:
//
//	[OP_FALSE] OP_RETURN <json push>
//
// and re-assembles the JSON object into the positional field shape,
// filling the core slots unused by proof records with "null". The
// extra slots sha256, boxFor, buyer and seller follow the core run in
// that order.
func DecodeTagged(s *script.Script) ([]string, error) {
	if s == nil {
		return nil, ErrNotTagged
	}
	chunks, err := s.Chunks()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTagged, err)
	}

	i := 0
	if i < len(chunks) && chunks[i].Op == script.Op0 && len(chunks[i].Data) == 0 {
		i++
	}
	if i >= len(chunks) || chunks[i].Op != script.OpRETURN {
		return nil, fmt.Errorf("%w: missing OP_RETURN", ErrNotTagged)
	}
	i++
	if i >= len(chunks) || len(chunks[i].Data) == 0 {
		return nil, fmt.Errorf("%w: no payload push", ErrNotTagged)
	}

	var p taggedPayload
	if err := json.Unmarshal(chunks[i].Data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTagged, err)
	}
	if p.Kind == "" || p.Topic == "" {
		return nil, fmt.Errorf("%w: payload missing kind or topic", ErrNotTagged)
	}

	fields := []string{
		p.Kind,
		p.Topic,
		orNull(p.Actor),
		orNull(p.Parent),
		NullField, // createdAt
		NullField, // expiresAt
		NullField, // quantity
		NullField, // price
		NullField, // currency
		orNull(p.Sha256),
		orNull(p.BoxFor),
		orNull(p.Buyer),
		orNull(p.Seller),
	}
	return fields, nil
}

func orNull(v string) string {
	if v == "" {
		return NullField
	}
	return v
}
